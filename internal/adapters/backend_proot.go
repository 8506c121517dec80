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

// ProotBackend intercepts and rewrites syscalls through proot to
// emulate root-owned files without namespace support. Slower than the
// other variants but needs no special host support beyond the proot
// binary itself. Directory binds are passed to proot as -b arguments
// rather than mounted.
type ProotBackend struct {
	cfg    types.BootstrapConfig
	stager StagerAdapter

	lookPath func(string) (string, error)
	euid     func() int
}

func NewProotBackend(cfg types.BootstrapConfig) *ProotBackend {
	return &ProotBackend{
		cfg:      cfg,
		stager:   NewStagerAdapter(false),
		lookPath: exec.LookPath,
		euid:     os.Geteuid,
	}
}

func (b *ProotBackend) Kind() types.BackendKind {
	return types.BackendProot
}

func (b *ProotBackend) Enter(_ context.Context, session *types.Session) error {
	if session.State != types.SessionCreated {
		return shared.BackendUnavailable("session is not in the created state")
	}
	if _, err := b.lookPath("proot"); err != nil {
		return shared.BackendUnavailable("proot binary not on PATH")
	}
	if b.cfg.QemuBinary != "" {
		if _, err := os.Stat(b.cfg.QemuBinary); err != nil {
			return shared.BackendUnavailable("emulation binary " + b.cfg.QemuBinary)
		}
	}
	session.State = types.SessionEntered
	return nil
}

func (b *ProotBackend) Execute(ctx context.Context, session *types.Session, argv []string, env map[string]string) (types.PhaseResult, error) {
	if session.State != types.SessionEntered {
		return types.PhaseResult{Status: types.StatusFatalFailure}, shared.BackendUnavailable("execute on a session that was never entered")
	}
	prefix := []string{"proot", "--rootfs=" + session.Rootfs, "--cwd=/"}
	if b.cfg.QemuBinary != "" {
		prefix = append(prefix, "--qemu="+b.cfg.QemuBinary)
	}
	for _, spec := range b.dirBinds(session) {
		prefix = append(prefix, "-b", spec.Source+":/"+spec.Target)
	}
	if b.euid() != 0 {
		prefix = append(prefix, "-0")
	}
	merged := map[string]string{"PROOT_NO_SECCOMP": "1"}
	for key, value := range env {
		merged[key] = value
	}
	return runCommand(ctx, prefix, argv, mergeEnv(baseEnv(), merged))
}

func (b *ProotBackend) Bind(_ context.Context, session *types.Session, spec types.BindSpec) error {
	return stageBind(b.stager, session, spec)
}

func (b *ProotBackend) Exit(_ context.Context, session *types.Session) error {
	return exitSession(b.stager, session)
}

// dirBinds lists the staged directory binds in staging order so they
// can be rendered as proot arguments.
func (b *ProotBackend) dirBinds(session *types.Session) []types.BindSpec {
	var dirs []types.BindSpec
	for _, spec := range session.Staged() {
		if spec.Kind == types.BindDir {
			dirs = append(dirs, types.BindSpec{
				Source: spec.Source,
				Target: filepath.ToSlash(filepath.Clean(spec.Target)),
				Kind:   spec.Kind,
			})
		}
	}
	return dirs
}

var _ ports.BackendPort = (*ProotBackend)(nil)
