package adapters

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// StagerAdapter copies file binds into the target tree and mounts (or
// emulates) directory binds. With Mount false, directory binds are
// emulated by creating the target directory only; backends that pass
// the bind to their isolation binary use this mode.
type StagerAdapter struct {
	Mount bool
}

func NewStagerAdapter(mount bool) StagerAdapter {
	return StagerAdapter{Mount: mount}
}

func (a StagerAdapter) Stage(rootfs string, spec types.BindSpec) error {
	target := filepath.Join(rootfs, strings.TrimPrefix(spec.Target, "/"))
	source, err := filepath.EvalSymlinks(spec.Source)
	if err != nil {
		return shared.StageError("resolving bind source "+spec.Source, err)
	}

	switch spec.Kind {
	case types.BindFile:
		return stageFile(source, target)
	case types.BindDir:
		if err := checkDirTarget(target); err != nil {
			return err
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return shared.StageError("creating bind target "+target, err)
		}
		if !a.Mount {
			return nil
		}
		if out, err := exec.Command("mount", "-o", "bind", source, target).CombinedOutput(); err != nil {
			return shared.StageError("mounting "+source+" at "+target, shared.CommandError(out, err))
		}
		return nil
	default:
		return shared.StageError("unknown bind kind "+string(spec.Kind), nil)
	}
}

func (a StagerAdapter) Unstage(rootfs string, spec types.BindSpec) error {
	target := filepath.Join(rootfs, strings.TrimPrefix(spec.Target, "/"))

	switch spec.Kind {
	case types.BindFile:
		if err := os.Remove(target); err != nil {
			return shared.StageError("removing staged file "+target, err)
		}
		return nil
	case types.BindDir:
		if !a.Mount {
			return nil
		}
		if out, err := exec.Command("umount", target).CombinedOutput(); err != nil {
			return shared.StageError("unmounting "+target, shared.CommandError(out, err))
		}
		return nil
	default:
		return shared.StageError("unknown bind kind "+string(spec.Kind), nil)
	}
}

func stageFile(source string, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return shared.StageError("reading bind source "+source, err)
	}
	if existing, err := os.Lstat(target); err == nil && existing.IsDir() {
		return shared.StageError("bind target "+target+" exists as a directory", nil)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return shared.StageError("creating parent of "+target, err)
	}

	in, err := os.Open(source)
	if err != nil {
		return shared.StageError("opening bind source "+source, err)
	}
	defer in.Close()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return shared.StageError("creating bind target "+target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return shared.StageError("copying into "+target, err)
	}
	if err := out.Close(); err != nil {
		return shared.StageError("writing "+target, err)
	}
	log.Debug().Str("source", source).Str("target", target).Msg("staged file bind")
	return nil
}

func checkDirTarget(target string) error {
	existing, err := os.Lstat(target)
	if err != nil {
		return nil
	}
	if !existing.IsDir() {
		return shared.StageError("bind target "+target+" exists as a file", nil)
	}
	return nil
}

var _ ports.StagerPort = StagerAdapter{}
