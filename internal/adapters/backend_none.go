package adapters

import (
	"context"
	"path/filepath"
	"strings"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// NoneBackend runs commands on the host with absolute path arguments
// rewritten to point into the target tree. No real isolation; used for
// dry inspection. It never requires privilege or host helpers.
type NoneBackend struct {
	cfg    types.BootstrapConfig
	stager StagerAdapter
}

func NewNoneBackend(cfg types.BootstrapConfig) *NoneBackend {
	return &NoneBackend{cfg: cfg, stager: NewStagerAdapter(false)}
}

func (b *NoneBackend) Kind() types.BackendKind {
	return types.BackendNone
}

func (b *NoneBackend) Enter(_ context.Context, session *types.Session) error {
	if session.State != types.SessionCreated {
		return shared.BackendUnavailable("session is not in the created state")
	}
	session.State = types.SessionEntered
	return nil
}

func (b *NoneBackend) Execute(ctx context.Context, session *types.Session, argv []string, env map[string]string) (types.PhaseResult, error) {
	if session.State != types.SessionEntered {
		return types.PhaseResult{Status: types.StatusFatalFailure}, shared.BackendUnavailable("execute on a session that was never entered")
	}
	rewritten := make([]string, 0, len(argv))
	for idx, arg := range argv {
		if idx > 0 && strings.HasPrefix(arg, "/") {
			rewritten = append(rewritten, filepath.Join(session.Rootfs, arg))
			continue
		}
		rewritten = append(rewritten, arg)
	}
	return runCommand(ctx, nil, rewritten, mergeEnv(baseEnv(), env))
}

func (b *NoneBackend) Bind(_ context.Context, session *types.Session, spec types.BindSpec) error {
	return stageBind(b.stager, session, spec)
}

func (b *NoneBackend) Exit(_ context.Context, session *types.Session) error {
	return exitSession(b.stager, session)
}

var _ ports.BackendPort = (*NoneBackend)(nil)
