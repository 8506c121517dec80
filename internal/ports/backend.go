package ports

import (
	"context"

	"rootstrap/internal/types"
)

// BackendPort is the isolation backend contract: a closed set of
// variants that run commands with the target tree as their effective
// root under some privilege model.
type BackendPort interface {
	// Kind identifies the backend variant.
	Kind() types.BackendKind

	// Enter validates host support for the variant (privilege, setuid
	// helper, emulation binary) and transitions the session to the
	// entered state. Cross-architecture runs stage the emulation
	// binary into the tree as a file bind before Enter succeeds.
	Enter(ctx context.Context, session *types.Session) error

	// Execute runs argv with the target tree as its root, merging env
	// over the backend's base environment. A non-zero exit is carried
	// in the PhaseResult, never swallowed.
	Execute(ctx context.Context, session *types.Session, argv []string, env map[string]string) (types.PhaseResult, error)

	// Bind stages a bind into the session. Calling it again with an
	// identical spec is a no-op.
	Bind(ctx context.Context, session *types.Session, spec types.BindSpec) error

	// Exit unstages every bind registered on the session in reverse
	// staging order and releases the isolation context. It always
	// attempts full teardown; unstage failures are reported but must
	// not mask a prior phase error.
	Exit(ctx context.Context, session *types.Session) error
}
