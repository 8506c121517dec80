package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// ManifestFromReport converts a size-report artifact into a freeze
// manifest. The report already carries exact versions, so no package
// database access is needed.
func ManifestFromReport(report types.SizeReport) types.FreezeManifest {
	manifest := types.FreezeManifest{
		Architecture: report.Architecture,
		Suite:        report.Suite,
	}
	for _, entry := range report.Entries {
		manifest.Packages = append(manifest.Packages, types.PackageRecord{
			Name:          entry.Name,
			Version:       entry.Version,
			InstalledSize: entry.InstalledSize,
			Priority:      entry.Priority,
			Origin:        types.OriginApt,
		})
	}
	sortRecords(manifest.Packages)
	return manifest
}

var installedRow = regexp.MustCompile(`^ii\s+(\S+)\s+(\S+)`)

// ParseInstalledList parses `dpkg --list` output into package records.
// Only rows in the installed state (ii) count; an :arch suffix on the
// package name is stripped.
func ParseInstalledList(output string) []types.PackageRecord {
	var records []types.PackageRecord
	for _, line := range strings.Split(output, "\n") {
		match := installedRow.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := match[1]
		if idx := strings.Index(name, ":"); idx >= 0 {
			name = name[:idx]
		}
		records = append(records, types.PackageRecord{
			Name:     name,
			Version:  match[2],
			Priority: types.PriorityUnknown,
			Origin:   types.OriginApt,
		})
	}
	sortRecords(records)
	return records
}

// ValidateManifest checks the freeze manifest schema: every package
// needs a name and version, and names must be unique.
func ValidateManifest(manifest types.FreezeManifest) error {
	seen := map[string]bool{}
	for idx, record := range manifest.Packages {
		if strings.TrimSpace(record.Name) == "" {
			return shared.MalformedManifest(fmt.Sprintf("package %d has no name", idx))
		}
		if strings.TrimSpace(record.Version) == "" {
			return shared.MalformedManifest("package " + record.Name + " has no version")
		}
		if seen[record.Name] {
			return shared.MalformedManifest("duplicate package " + record.Name)
		}
		seen[record.Name] = true
	}
	return nil
}

// ReplayPins expands a validated manifest into the explicit
// name=version list that the resolve phase consumes in place of
// priority-based expansion.
func ReplayPins(manifest types.FreezeManifest) ([]string, error) {
	if err := ValidateManifest(manifest); err != nil {
		return nil, err
	}
	pins := make([]string, 0, len(manifest.Packages))
	for _, record := range manifest.Packages {
		pins = append(pins, record.Name+"="+record.Version)
	}
	sort.Strings(pins)
	return pins, nil
}

func sortRecords(records []types.PackageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
}
