package ports

import (
	"context"

	"rootstrap/internal/types"
)

// RootfsPort prepares and finalizes the target directory tree around
// the package-manager phases.
type RootfsPort interface {
	// Initialize writes the apt/dpkg directory skeleton and the
	// bootstrap sources list into the target tree.
	Initialize(cfg types.BootstrapConfig) error

	// Tweak applies post-extract filesystem fixes that must land
	// before dpkg configures packages.
	Tweak(cfg types.BootstrapConfig) error

	// WritePolicyScript installs a policy-rc.d that denies runlevel
	// operations so no daemons start during configure.
	WritePolicyScript(rootfs string) error

	// RemovePolicyScript removes the policy-rc.d again.
	RemovePolicyScript(rootfs string) error

	// RemoveBootstrapArtifacts deletes bootstrap-only files such as
	// the temporary package-source list and the archive cache.
	RemoveBootstrapArtifacts(cfg types.BootstrapConfig) error
}

// ExtractorPort unpacks downloaded archives into the target tree
// without running package configuration scripts.
type ExtractorPort interface {
	Unpack(ctx context.Context, cfg types.BootstrapConfig) (types.SizeReport, error)
}
