package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rootstrap/internal/shared"
)

// Report renders a sorted, human-readable table from a size-report
// artifact.
func (s Service) Report(_ context.Context, req ReportRequest) (ReportResult, error) {
	report, err := s.SizeReports.Read(strings.TrimSpace(req.ReportPath))
	if err != nil {
		return ReportResult{}, err
	}

	entries := append(report.Entries[:0:0], report.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		if req.SortBySize {
			return entries[i].InstalledSize < entries[j].InstalledSize
		}
		return entries[i].Name < entries[j].Name
	})

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		packed := fmt.Sprintf("%12d", entry.PackedSize)
		installed := fmt.Sprintf("%12d", entry.InstalledSize)
		if req.HumanReadable {
			packed = fmt.Sprintf("%10s", shared.HumanSize(entry.PackedSize))
			installed = fmt.Sprintf("%10s", shared.HumanSize(entry.InstalledSize))
		}
		description := entry.Description
		if runes := []rune(description); len(runes) > 30 {
			description = string(runes[:30])
		}
		lines = append(lines, fmt.Sprintf("%s %s %-20s %s", packed, installed, entry.Name, description))
	}
	return ReportResult{Lines: lines}, nil
}
