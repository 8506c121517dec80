package ports

import "rootstrap/internal/types"

// StagerPort copies files or mounts directories into the target tree
// and guarantees the inverse on teardown. File specs are copied in and
// deleted; directory specs are mounted (or emulated) and unmounted.
type StagerPort interface {
	Stage(rootfs string, spec types.BindSpec) error
	Unstage(rootfs string, spec types.BindSpec) error
}
