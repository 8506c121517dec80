// Package testutil provides shared test helpers used across the
// integration and e2e test packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WritePackagesIndex drops a Packages file under the rootfs apt lists
// directory as if apt-get update had run against a single mirror.
func WritePackagesIndex(t *testing.T, rootfs string, contents string) {
	t.Helper()
	listDir := filepath.Join(rootfs, "var/lib/apt/lists")
	require.NoError(t, os.MkdirAll(listDir, 0o755))
	path := filepath.Join(listDir, "mirror_dists_noble_main_binary-amd64_Packages")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
