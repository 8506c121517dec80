package adapters

import (
	"context"
	"os/exec"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// UserNSBackend creates a new user namespace mapping the invoking user
// to root inside it. It does not need host-level privilege but relies
// on the setuid id-map helpers being installed.
type UserNSBackend struct {
	cfg    types.BootstrapConfig
	stager StagerAdapter

	lookPath func(string) (string, error)
}

func NewUserNSBackend(cfg types.BootstrapConfig) *UserNSBackend {
	return &UserNSBackend{cfg: cfg, stager: NewStagerAdapter(false), lookPath: exec.LookPath}
}

func (b *UserNSBackend) Kind() types.BackendKind {
	return types.BackendUserNS
}

func (b *UserNSBackend) Enter(ctx context.Context, session *types.Session) error {
	if session.State != types.SessionCreated {
		return shared.BackendUnavailable("session is not in the created state")
	}
	for _, helper := range []string{"newuidmap", "newgidmap"} {
		if _, err := b.lookPath(helper); err != nil {
			return shared.MissingHelper(helper)
		}
	}
	if _, err := b.lookPath("unshare"); err != nil {
		return shared.BackendUnavailable("unshare binary not on PATH")
	}
	if err := stageQemu(ctx, b, session, b.cfg.QemuBinary); err != nil {
		return err
	}
	session.State = types.SessionEntered
	return nil
}

func (b *UserNSBackend) Execute(ctx context.Context, session *types.Session, argv []string, env map[string]string) (types.PhaseResult, error) {
	if session.State != types.SessionEntered {
		return types.PhaseResult{Status: types.StatusFatalFailure}, shared.BackendUnavailable("execute on a session that was never entered")
	}
	prefix := []string{"unshare", "--map-root-user", "--mount", "--root=" + session.Rootfs}
	return runCommand(ctx, prefix, argv, mergeEnv(baseEnv(), env))
}

func (b *UserNSBackend) Bind(_ context.Context, session *types.Session, spec types.BindSpec) error {
	return stageBind(b.stager, session, spec)
}

func (b *UserNSBackend) Exit(_ context.Context, session *types.Session) error {
	return exitSession(b.stager, session)
}

var _ ports.BackendPort = (*UserNSBackend)(nil)
