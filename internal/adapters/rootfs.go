package adapters

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// bootstrapSourcesPath is the temporary package-source list written
// into the tree before resolve and removed before clean completes.
const bootstrapSourcesPath = "etc/apt/sources.list.d/bootstrap.list"

const policyScriptPath = "usr/sbin/policy-rc.d"

const policyScript = `#!/bin/sh
echo "All runlevel operations denied by policy" >&2
exit 101
`

// RootfsAdapter prepares the target tree for apt and dpkg and cleans
// bootstrap-only artifacts out of it again.
type RootfsAdapter struct{}

func NewRootfsAdapter() RootfsAdapter {
	return RootfsAdapter{}
}

func (a RootfsAdapter) Initialize(cfg types.BootstrapConfig) error {
	rootfs := cfg.Rootfs
	if err := os.MkdirAll(rootfs, 0o755); err != nil {
		return shared.PhaseFailure("creating rootfs directory", err)
	}

	lib64 := filepath.Join(rootfs, "lib64")
	if _, err := os.Lstat(lib64); os.IsNotExist(err) {
		if err := os.Symlink("lib", lib64); err != nil {
			return shared.PhaseFailure("creating lib64 symlink", err)
		}
	}

	for _, dir := range []string{
		"etc/apt",
		"etc/apt/sources.list.d",
		"etc/apt/preferences.d",
		"var/cache/apt/archives/partial",
		"var/cache/debconf",
		"var/lib/apt/lists",
		"var/lib/dpkg",
		"var/lib/dpkg/alternatives",
		"var/lib/dpkg/info",
		"var/lib/dpkg/parts",
		"var/lib/dpkg/updates",
	} {
		if err := os.MkdirAll(filepath.Join(rootfs, dir), 0o755); err != nil {
			return shared.PhaseFailure("creating "+dir, err)
		}
	}

	for _, touch := range []string{
		"var/lib/dpkg/arch",
		"var/lib/dpkg/diversions",
		"var/lib/dpkg/lock",
		"var/lib/dpkg/statoverride",
		"var/lib/dpkg/status",
	} {
		path := filepath.Join(rootfs, touch)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return shared.PhaseFailure("touching "+touch, err)
		}
	}

	sourcesPath := filepath.Join(rootfs, bootstrapSourcesPath)
	if err := os.WriteFile(sourcesPath, []byte(cfg.AptSources), 0o644); err != nil {
		return shared.PhaseFailure("writing bootstrap sources list", err)
	}
	log.Debug().Str("rootfs", rootfs).Msg("initialized rootfs skeleton")
	return nil
}

func (a RootfsAdapter) Tweak(cfg types.BootstrapConfig) error {
	rootfs := cfg.Rootfs

	// resolvconf's configure hook writes into this directory and
	// fails when it is absent.
	resolvconfDir := filepath.Join(rootfs, "run/resolvconf/interface")
	if err := os.MkdirAll(resolvconfDir, 0o755); err != nil {
		return shared.PhaseFailure("creating run/resolvconf/interface", err)
	}

	// makedev's postinst needs CAP_MKNOD; when running unprivileged,
	// park the script so configure does not trip over it.
	if os.Geteuid() != 0 {
		makedev := filepath.Join(rootfs, "var/lib/dpkg/info/makedev.postinst")
		if _, err := os.Stat(makedev); err == nil {
			if err := os.Rename(makedev, makedev+".bak"); err != nil {
				return shared.PhaseFailure("disabling makedev postinst", err)
			}
		}
	}
	return nil
}

func (a RootfsAdapter) WritePolicyScript(rootfs string) error {
	path := filepath.Join(rootfs, policyScriptPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return shared.PhaseFailure("creating usr/sbin", err)
	}
	if err := os.WriteFile(path, []byte(policyScript), 0o755); err != nil {
		return shared.PhaseFailure("writing policy-rc.d", err)
	}
	return nil
}

func (a RootfsAdapter) RemovePolicyScript(rootfs string) error {
	path := filepath.Join(rootfs, policyScriptPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return shared.PhaseFailure("removing policy-rc.d", err)
	}
	return nil
}

func (a RootfsAdapter) RemoveBootstrapArtifacts(cfg types.BootstrapConfig) error {
	path := filepath.Join(cfg.Rootfs, bootstrapSourcesPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return shared.PhaseFailure("removing bootstrap sources list", err)
	}
	return nil
}

var _ ports.RootfsPort = RootfsAdapter{}
