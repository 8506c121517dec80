package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

func TestStageFileBindCopiesIntoTree(t *testing.T) {
	rootfs := t.TempDir()
	source := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(source, []byte("nameserver 1.1.1.1\n"), 0o644))

	stager := NewStagerAdapter(false)
	spec := types.BindSpec{Source: source, Target: "etc/resolv.conf", Kind: types.BindFile}
	require.NoError(t, stager.Stage(rootfs, spec))

	data, err := os.ReadFile(filepath.Join(rootfs, "etc/resolv.conf"))
	require.NoError(t, err)
	assert.Equal(t, "nameserver 1.1.1.1\n", string(data))

	require.NoError(t, stager.Unstage(rootfs, spec))
	_, err = os.Stat(filepath.Join(rootfs, "etc/resolv.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestStageFileBindRejectsDirectoryTarget(t *testing.T) {
	rootfs := t.TempDir()
	source := filepath.Join(t.TempDir(), "urandom")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(rootfs, "dev/urandom"), 0o755))

	stager := NewStagerAdapter(false)
	err := stager.Stage(rootfs, types.BindSpec{Source: source, Target: "dev/urandom", Kind: types.BindFile})
	require.Error(t, err)
	assert.True(t, shared.IsStageError(err))
}

func TestStageDirBindEmulatedCreatesTarget(t *testing.T) {
	rootfs := t.TempDir()
	source := t.TempDir()

	stager := NewStagerAdapter(false)
	spec := types.BindSpec{Source: source, Target: "opt/wheelhouse", Kind: types.BindDir}
	require.NoError(t, stager.Stage(rootfs, spec))

	info, err := os.Stat(filepath.Join(rootfs, "opt/wheelhouse"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Emulated dir binds have nothing to unmount.
	assert.NoError(t, stager.Unstage(rootfs, spec))
}

func TestStageDirBindRejectsFileTarget(t *testing.T) {
	rootfs := t.TempDir()
	source := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(rootfs, "opt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootfs, "opt/wheelhouse"), []byte("not a dir"), 0o644))

	stager := NewStagerAdapter(false)
	err := stager.Stage(rootfs, types.BindSpec{Source: source, Target: "opt/wheelhouse", Kind: types.BindDir})
	require.Error(t, err)
	assert.True(t, shared.IsStageError(err))
}

func TestStageMissingSourceFails(t *testing.T) {
	rootfs := t.TempDir()
	stager := NewStagerAdapter(false)
	err := stager.Stage(rootfs, types.BindSpec{Source: "/nonexistent/source", Target: "etc/thing", Kind: types.BindFile})
	require.Error(t, err)
	assert.True(t, shared.IsStageError(err))
}

func TestStageUnknownKindFails(t *testing.T) {
	stager := NewStagerAdapter(false)
	source := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))
	err := stager.Stage(t.TempDir(), types.BindSpec{Source: source, Target: "f", Kind: "socket"})
	require.Error(t, err)
	assert.True(t, shared.IsStageError(err))
}
