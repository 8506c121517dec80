package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rootstrap/internal/core"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// Freeze captures an installed package set as a reproducible manifest,
// either from a size-report artifact or by introspecting the package
// database of a rootfs through an isolation session. The manifest is
// decoupled from the resolution rules that originally selected the
// packages.
func (s Service) Freeze(ctx context.Context, req FreezeRequest) (FreezeResult, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return FreezeResult{}, shared.MalformedManifest("freeze input is required")
	}

	var manifest types.FreezeManifest
	info, err := os.Stat(input)
	switch {
	case err == nil && info.IsDir():
		manifest, err = s.freezeLive(ctx, req, input)
		if err != nil {
			return FreezeResult{}, err
		}
	default:
		report, err := s.SizeReports.Read(input)
		if err != nil {
			return FreezeResult{}, err
		}
		manifest = core.ManifestFromReport(report)
	}

	if manifest.Architecture == "" {
		manifest.Architecture = strings.TrimSpace(req.Architecture)
	}
	if manifest.Suite == "" {
		manifest.Suite = strings.TrimSpace(req.Suite)
	}
	if err := core.ValidateManifest(manifest); err != nil {
		return FreezeResult{}, err
	}

	result := FreezeResult{Manifest: manifest}
	if out := strings.TrimSpace(req.OutputPath); out != "" {
		if req.Format == "text" {
			if err := writePinList(out, manifest); err != nil {
				return FreezeResult{}, err
			}
		} else if err := s.Manifests.Write(out, manifest); err != nil {
			return FreezeResult{}, err
		}
		result.OutputPath = out
	}
	return result, nil
}

// freezeLive enumerates installed packages through dpkg inside an
// isolation session against the given rootfs.
func (s Service) freezeLive(ctx context.Context, req FreezeRequest, rootfs string) (types.FreezeManifest, error) {
	statusPath := filepath.Join(rootfs, "var/lib/dpkg/status")
	info, err := os.Stat(statusPath)
	if err != nil || info.Size() == 0 {
		return types.FreezeManifest{}, shared.NoPackageDatabase(rootfs)
	}

	cfg := types.BootstrapConfig{
		Rootfs:     rootfs,
		Backend:    types.BackendKind(strings.TrimSpace(req.Backend)),
		QemuBinary: strings.TrimSpace(req.QemuBinary),
	}
	backend, err := s.NewBackend(cfg)
	if err != nil {
		return types.FreezeManifest{}, err
	}

	argv := []string{"dpkg", "--list"}
	if backend.Kind() == types.BackendNone {
		// Without isolation nothing re-roots dpkg, so point it at the
		// target database explicitly instead of the host's.
		abs, absErr := filepath.Abs(rootfs)
		if absErr != nil {
			return types.FreezeManifest{}, shared.PhaseFailure("resolving rootfs path", absErr)
		}
		argv = []string{"dpkg", "--root=" + abs, "--list"}
	}

	session := types.NewSession(rootfs)
	if err := backend.Enter(ctx, session); err != nil {
		return types.FreezeManifest{}, err
	}
	execResult, execErr := backend.Execute(ctx, session, argv, nil)
	exitErr := backend.Exit(ctx, session)
	if execErr != nil {
		return types.FreezeManifest{}, shared.PhaseFailure("dpkg --list", execErr)
	}
	if exitErr != nil {
		return types.FreezeManifest{}, exitErr
	}

	return types.FreezeManifest{
		Packages: core.ParseInstalledList(execResult.Output),
	}, nil
}

// Replay expands a frozen manifest into the explicit package pin list
// that overrides priority-based resolution on a future bootstrap.
func (s Service) Replay(_ context.Context, req ReplayRequest) (ReplayResult, error) {
	manifest, err := s.Manifests.Read(strings.TrimSpace(req.ManifestPath))
	if err != nil {
		return ReplayResult{}, err
	}
	pins, err := core.ReplayPins(manifest)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{Packages: pins}, nil
}

func writePinList(path string, manifest types.FreezeManifest) error {
	var builder strings.Builder
	for _, record := range manifest.Packages {
		fmt.Fprintf(&builder, "%s=%s\n", record.Name, record.Version)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return shared.StageError("creating manifest directory", err)
	}
	return os.WriteFile(path, []byte(builder.String()), 0o644)
}
