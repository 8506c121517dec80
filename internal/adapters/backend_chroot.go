package adapters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// ChrootBackend uses the posix chroot binary and therefore requires
// the calling process to hold elevated privilege. Directory binds are
// real bind mounts.
type ChrootBackend struct {
	cfg    types.BootstrapConfig
	stager StagerAdapter

	// euid is swappable so tests can exercise the privilege check.
	euid func() int
}

func NewChrootBackend(cfg types.BootstrapConfig) *ChrootBackend {
	return &ChrootBackend{cfg: cfg, stager: NewStagerAdapter(true), euid: os.Geteuid}
}

func (b *ChrootBackend) Kind() types.BackendKind {
	return types.BackendChroot
}

func (b *ChrootBackend) Enter(ctx context.Context, session *types.Session) error {
	if session.State != types.SessionCreated {
		return shared.BackendUnavailable("session is not in the created state")
	}
	if b.euid() != 0 {
		return shared.InsufficientPrivilege("chroot backend requires root")
	}
	if _, err := exec.LookPath("chroot"); err != nil {
		return shared.BackendUnavailable("chroot binary not on PATH")
	}
	if err := stageQemu(ctx, b, session, b.cfg.QemuBinary); err != nil {
		return err
	}
	session.State = types.SessionEntered
	return nil
}

func (b *ChrootBackend) Execute(ctx context.Context, session *types.Session, argv []string, env map[string]string) (types.PhaseResult, error) {
	if session.State != types.SessionEntered {
		return types.PhaseResult{Status: types.StatusFatalFailure}, shared.BackendUnavailable("execute on a session that was never entered")
	}
	prefix := []string{"chroot", session.Rootfs}
	return runCommand(ctx, prefix, argv, mergeEnv(baseEnv(), env))
}

func (b *ChrootBackend) Bind(_ context.Context, session *types.Session, spec types.BindSpec) error {
	return stageBind(b.stager, session, spec)
}

func (b *ChrootBackend) Exit(_ context.Context, session *types.Session) error {
	return exitSession(b.stager, session)
}

// stageQemu stages the cross-architecture emulation binary into the
// tree as a file bind so it is removed again on exit.
func stageQemu(ctx context.Context, backend ports.BackendPort, session *types.Session, qemuBinary string) error {
	if qemuBinary == "" {
		return nil
	}
	if _, err := os.Stat(qemuBinary); err != nil {
		return shared.BackendUnavailable("emulation binary " + qemuBinary)
	}
	return backend.Bind(ctx, session, types.BindSpec{
		Source: qemuBinary,
		Target: filepath.Join("usr/bin", filepath.Base(qemuBinary)),
		Kind:   types.BindFile,
	})
}

var _ ports.BackendPort = (*ChrootBackend)(nil)
