package ports

import (
	"context"

	"rootstrap/internal/types"
)

// AptPort drives the host apt-get against the target tree.
type AptPort interface {
	// Update refreshes the package lists under the target tree using
	// the bootstrap sources.
	Update(ctx context.Context, cfg types.BootstrapConfig) error

	// Download fetches the given packages into the target tree's
	// archive cache without installing them.
	Download(ctx context.Context, cfg types.BootstrapConfig, packages []string) error

	// Clean removes apt cache and state files from the target tree.
	Clean(ctx context.Context, cfg types.BootstrapConfig) error
}

// PackageIndexPort reads the downloaded package lists to expand the
// priority-inclusion set and essential flag into concrete packages.
type PackageIndexPort interface {
	DefaultPackages(rootfs string, includeEssential bool, priorities []types.PriorityClass) ([]types.PackageRecord, error)
}
