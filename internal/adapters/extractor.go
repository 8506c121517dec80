package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	debversion "github.com/knqyf263/go-deb-version"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// ExtractorAdapter unpacks .deb archives into the target tree the same
// way dpkg --install would, up to the point of running configuration
// scripts. Extracted packages are configured later inside an isolation
// session.
type ExtractorAdapter struct{}

func NewExtractorAdapter() ExtractorAdapter {
	return ExtractorAdapter{}
}

func (a ExtractorAdapter) Unpack(ctx context.Context, cfg types.BootstrapConfig) (types.SizeReport, error) {
	report := types.SizeReport{
		Architecture: cfg.Architecture,
		Suite:        cfg.Suite,
	}

	cacheDir := filepath.Join(cfg.Rootfs, "var/cache/apt/archives")
	entries, err := os.ReadDir(cacheDir)
	if err != nil && !os.IsNotExist(err) {
		return report, shared.PhaseFailure("reading archive cache", err)
	}
	var debs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".deb") {
			debs = append(debs, filepath.Join(cacheDir, entry.Name()))
		}
	}
	debs = append(debs, cfg.ExternalDebs...)

	total := len(debs)
	log.Info().Int("count", total).Msg("unpacking archives")
	debs, err = filterObsolete(ctx, debs)
	if err != nil {
		return report, err
	}
	if len(debs) != total {
		log.Info().Int("count", len(debs)).Msg("filtered obsolete archives")
	}

	if err := os.MkdirAll(filepath.Join(cfg.Rootfs, "var/lib/dpkg"), 0o755); err != nil {
		return report, shared.PhaseFailure("creating dpkg directory", err)
	}

	for idx, debPath := range debs {
		fields, err := debFields(ctx, debPath, "Package", "Version", "Installed-Size", "Priority", "Description")
		if err != nil {
			return report, err
		}
		entry := types.SizeReportEntry{
			Name:          fields["Package"],
			Version:       fields["Version"],
			PackedSize:    fileSize(debPath),
			InstalledSize: parseInstalledSize(fields["Installed-Size"]),
			Priority:      types.ParsePriority(fields["Priority"]),
			Description:   firstLine(fields["Description"]),
		}
		log.Debug().
			Str("package", entry.Name).
			Int("done", idx+1).
			Int("total", len(debs)).
			Msg("unpacking")
		if err := extractDeb(ctx, debPath, cfg.Rootfs, entry.Name); err != nil {
			return report, err
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

// filterObsolete drops any archive whose package also appears at a
// newer version elsewhere in the batch.
func filterObsolete(ctx context.Context, debs []string) ([]string, error) {
	type candidate struct {
		path    string
		version string
	}
	byPackage := map[string]candidate{}
	for _, debPath := range debs {
		fields, err := debFields(ctx, debPath, "Package", "Version")
		if err != nil {
			return nil, err
		}
		name, version := fields["Package"], fields["Version"]
		existing, seen := byPackage[name]
		if !seen {
			byPackage[name] = candidate{path: debPath, version: version}
			continue
		}
		newer, err := debVersionGreater(version, existing.version)
		if err != nil {
			return nil, shared.PhaseFailure("comparing versions for "+name, err)
		}
		if newer {
			log.Warn().Str("package", name).Str("version", existing.version).Str("superseded_by", version).Msg("skipping obsolete archive")
			byPackage[name] = candidate{path: debPath, version: version}
		} else {
			log.Warn().Str("package", name).Str("version", version).Str("superseded_by", existing.version).Msg("skipping obsolete archive")
		}
	}
	filtered := make([]string, 0, len(byPackage))
	for _, entry := range byPackage {
		filtered = append(filtered, entry.path)
	}
	sort.Strings(filtered)
	return filtered, nil
}

func debVersionGreater(left string, right string) (bool, error) {
	leftVersion, err := debversion.NewVersion(left)
	if err != nil {
		return false, err
	}
	rightVersion, err := debversion.NewVersion(right)
	if err != nil {
		return false, err
	}
	return leftVersion.GreaterThan(rightVersion), nil
}

// extractDeb replicates dpkg --install short of maintainer scripts:
// unpack the data archive, record the file list, copy control scripts
// into the dpkg info directory, and mark the package unpacked in the
// status file.
func extractDeb(ctx context.Context, debPath string, rootfs string, packageName string) error {
	infoDir := filepath.Join(rootfs, "var/lib/dpkg/info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return shared.PhaseFailure("creating dpkg info directory", err)
	}

	listOut, err := exec.CommandContext(ctx, "dpkg", "-X", debPath, rootfs).Output()
	if err != nil {
		return shared.PhaseFailure("extracting "+debPath, shared.CommandError(listOut, err))
	}
	listPath := filepath.Join(infoDir, packageName+".list")
	if err := os.WriteFile(listPath, listOut, 0o644); err != nil {
		return shared.PhaseFailure("writing file list for "+packageName, err)
	}

	controlDir, err := os.MkdirTemp("", "rootstrap-control-")
	if err != nil {
		return shared.PhaseFailure("creating control scratch dir", err)
	}
	defer os.RemoveAll(controlDir)
	if out, err := exec.CommandContext(ctx, "dpkg", "-e", debPath, controlDir).CombinedOutput(); err != nil {
		return shared.PhaseFailure("extracting control of "+debPath, shared.CommandError(out, err))
	}

	scripts, err := os.ReadDir(controlDir)
	if err != nil {
		return shared.PhaseFailure("reading control scripts", err)
	}
	statusPath := filepath.Join(rootfs, "var/lib/dpkg/status")
	status, err := os.OpenFile(statusPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return shared.PhaseFailure("opening dpkg status file", err)
	}
	defer status.Close()
	availablePath := filepath.Join(rootfs, "var/lib/dpkg/available")
	available, err := os.OpenFile(availablePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return shared.PhaseFailure("opening dpkg available file", err)
	}
	defer available.Close()

	for _, script := range scripts {
		scriptPath := filepath.Join(controlDir, script.Name())
		if script.Name() == "control" {
			content, err := os.ReadFile(scriptPath)
			if err != nil {
				return shared.PhaseFailure("reading control file", err)
			}
			trimmed := strings.TrimRight(string(content), "\n")
			if _, err := fmt.Fprintf(available, "%s\n\n", trimmed); err != nil {
				return shared.PhaseFailure("appending to available", err)
			}
			if _, err := fmt.Fprintf(status, "%s\nStatus: install ok unpacked\n\n", trimmed); err != nil {
				return shared.PhaseFailure("appending to status", err)
			}
			continue
		}
		data, err := os.ReadFile(scriptPath)
		if err != nil {
			return shared.PhaseFailure("reading control script "+script.Name(), err)
		}
		target := filepath.Join(infoDir, packageName+"."+script.Name())
		if err := os.WriteFile(target, data, 0o755); err != nil {
			return shared.PhaseFailure("installing control script "+script.Name(), err)
		}
	}
	return nil
}

// debFields reads control fields from a .deb via dpkg --field.
func debFields(ctx context.Context, debPath string, fields ...string) (map[string]string, error) {
	out, err := exec.CommandContext(ctx, "dpkg", append([]string{"--field", debPath}, fields...)...).Output()
	if err != nil {
		return nil, shared.PhaseFailure("reading control fields of "+debPath, err)
	}
	stanzas, err := ParseRFC822(strings.NewReader(string(out)))
	if err != nil {
		return nil, shared.PhaseFailure("parsing control fields of "+debPath, err)
	}
	values := map[string]string{}
	if len(stanzas) > 0 {
		values = stanzas[0]
	}
	return values, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func firstLine(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	return line
}

var _ ports.ExtractorPort = ExtractorAdapter{}
