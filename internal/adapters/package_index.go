package adapters

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// PackageIndexAdapter reads the Packages index files that apt-get
// update leaves under var/lib/apt/lists and expands the configured
// priority-inclusion set into concrete package records.
type PackageIndexAdapter struct{}

func NewPackageIndexAdapter() PackageIndexAdapter {
	return PackageIndexAdapter{}
}

func (a PackageIndexAdapter) DefaultPackages(rootfs string, includeEssential bool, priorities []types.PriorityClass) ([]types.PackageRecord, error) {
	listDir := filepath.Join(rootfs, "var/lib/apt/lists")
	entries, err := os.ReadDir(listDir)
	if err != nil {
		return nil, shared.PhaseFailure("reading package lists", err)
	}

	wanted := map[types.PriorityClass]bool{}
	for _, priority := range priorities {
		wanted[priority] = true
	}

	byName := map[string]types.PackageRecord{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_Packages") {
			continue
		}
		path := filepath.Join(listDir, entry.Name())
		file, err := os.Open(path)
		if err != nil {
			return nil, shared.PhaseFailure("opening package list "+path, err)
		}
		stanzas, err := ParseRFC822(file)
		file.Close()
		if err != nil {
			return nil, shared.PhaseFailure("parsing package list "+path, err)
		}
		for _, stanza := range stanzas {
			name := stanza["Package"]
			if name == "" {
				continue
			}
			_, essential := stanza["Essential"]
			priority := types.ParsePriority(stanza["Priority"])
			if !(essential && includeEssential) && !wanted[priority] {
				continue
			}
			byName[name] = types.PackageRecord{
				Name:          name,
				Version:       stanza["Version"],
				InstalledSize: parseInstalledSize(stanza["Installed-Size"]),
				Priority:      priority,
				Origin:        types.OriginApt,
			}
		}
	}

	records := make([]types.PackageRecord, 0, len(byName))
	for _, record := range byName {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	log.Debug().Int("count", len(records)).Msg("expanded default package set")
	return records, nil
}

// ParseRFC822 parses the rfc822-style stanzas used by debian package
// index and status files. Continuation lines start with whitespace and
// are folded into the previous field.
func ParseRFC822(reader io.Reader) ([]map[string]string, error) {
	var stanzas []map[string]string
	current := map[string]string{}
	currentKey := ""

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				stanzas = append(stanzas, current)
			}
			current = map[string]string{}
			currentKey = ""
			continue
		}
		if currentKey != "" && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			current[currentKey] = current[currentKey] + "\n" + strings.TrimSpace(line)
			continue
		}
		key, content, found := strings.Cut(line, ":")
		if !found {
			return nil, shared.PhaseFailure("malformed package stanza line "+strconv.Quote(line), nil)
		}
		currentKey = key
		current[currentKey] = strings.TrimSpace(content)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		stanzas = append(stanzas, current)
	}
	return stanzas, nil
}

// parseInstalledSize converts the Installed-Size field (kilobytes)
// to bytes, tolerating absent or malformed values.
func parseInstalledSize(value string) int64 {
	kb, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || kb < 0 {
		return 0
	}
	return kb * 1024
}

var _ ports.PackageIndexPort = PackageIndexAdapter{}
