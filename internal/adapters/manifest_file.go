package adapters

import (
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// ManifestFileAdapter persists freeze manifests as YAML.
type ManifestFileAdapter struct{}

func NewManifestFileAdapter() ManifestFileAdapter {
	return ManifestFileAdapter{}
}

func (a ManifestFileAdapter) Write(path string, manifest types.FreezeManifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create manifest directory").
			WithCause(err)
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode manifest").
			WithCause(err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (a ManifestFileAdapter) Read(path string) (types.FreezeManifest, error) {
	var manifest types.FreezeManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read manifest").
			WithCause(err)
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return manifest, shared.MalformedManifest("invalid yaml: " + err.Error())
	}
	return manifest, nil
}

var _ ports.ManifestPort = ManifestFileAdapter{}
