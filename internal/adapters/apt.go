package adapters

import (
	"context"
	"os"
	"path/filepath"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// AptAdapter drives the host apt-get against the target tree. Every
// invocation points apt's Dir::* options at the rootfs so the host
// package state is never touched, and download-only mode keeps apt
// from trying to run maintainer scripts.
type AptAdapter struct{}

func NewAptAdapter() AptAdapter {
	return AptAdapter{}
}

func (a AptAdapter) Update(ctx context.Context, cfg types.BootstrapConfig) error {
	argv := append(aptCommand(cfg), "update")
	result, err := runCommand(ctx, nil, argv, mergeEnv(baseEnv(), aptProxyEnv(cfg)))
	if err != nil {
		return shared.PhaseFailure("apt-get update", shared.CommandError([]byte(result.Output), err))
	}
	return nil
}

func (a AptAdapter) Download(ctx context.Context, cfg types.BootstrapConfig, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	argv := append(aptCommand(cfg),
		"-y",
		"--allow-downgrades",
		"--allow-remove-essential",
		"--allow-change-held-packages",
		"install")
	argv = append(argv, packages...)
	result, err := runCommand(ctx, nil, argv, mergeEnv(baseEnv(), aptProxyEnv(cfg)))
	if err != nil {
		return shared.PhaseFailure("apt-get install", shared.CommandError([]byte(result.Output), err))
	}
	return nil
}

func (a AptAdapter) Clean(ctx context.Context, cfg types.BootstrapConfig) error {
	argv := append(aptCommand(cfg), "clean")
	result, err := runCommand(ctx, nil, argv, mergeEnv(baseEnv(), aptProxyEnv(cfg)))
	if err != nil {
		return shared.PhaseFailure("apt-get clean", shared.CommandError([]byte(result.Output), err))
	}
	cacheDir := filepath.Join(cfg.Rootfs, "var/cache/apt/archives")
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return shared.PhaseFailure("purging archive cache", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(cacheDir, entry.Name())); err != nil {
			return shared.PhaseFailure("purging archive cache", err)
		}
	}
	return nil
}

// aptCommand builds the base apt-get argv that redirects all apt state
// into the target tree and restricts it to download-only operation.
func aptCommand(cfg types.BootstrapConfig) []string {
	rootfs := cfg.Rootfs
	return []string{
		"apt-get",
		"-o", "Apt::Architecture=" + cfg.Architecture,
		"-o", "Dir::Etc::TrustedParts=" + rootfs + "/etc/apt/trusted.gpg.d",
		"-o", "Dir::Etc::Trusted=" + rootfs + "/etc/apt/trusted.gpg",
		"-o", "Apt::Get::Download-Only=true",
		"-o", "Apt::Install-Recommends=false",
		"-o", "Dir=" + rootfs + "/",
		"-o", "Dir::Etc=" + rootfs + "/etc/apt/",
		"-o", "Dir::Etc::Parts=" + rootfs + "/etc/apt/apt.conf.d/",
		"-o", "Dir::Etc::PreferencesParts=" + rootfs + "/etc/apt/preferences.d/",
		"-o", "APT::Default-Release=*",
		"-o", "Dir::State=" + rootfs + "/var/lib/apt/",
		"-o", "Dir::State::Status=" + rootfs + "/var/lib/dpkg/status",
		"-o", "Dir::Cache=" + rootfs + "/var/cache/apt/",
		"-o", "Acquire::Source-Symlinks=false",
	}
}

// aptProxyEnv exports the configured proxy for the duration of the
// apt-get invocation only, never into the ambient process env.
func aptProxyEnv(cfg types.BootstrapConfig) map[string]string {
	if cfg.HTTPProxy == "" {
		return nil
	}
	return map[string]string{
		"http_proxy": cfg.HTTPProxy,
	}
}

var _ ports.AptPort = AptAdapter{}
