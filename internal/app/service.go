package app

import (
	"rootstrap/internal/adapters"
	"rootstrap/internal/core"
	"rootstrap/internal/ports"
	"rootstrap/internal/types"
)

type Service struct {
	Apt         ports.AptPort
	Rootfs      ports.RootfsPort
	Extractor   ports.ExtractorPort
	Index       ports.PackageIndexPort
	SizeReports ports.SizeReportPort
	Manifests   ports.ManifestPort
	HostInfo    ports.HostInfoPort

	// NewBackend builds the isolation backend for a resolved config.
	// Swappable so tests can substitute a recording fake.
	NewBackend func(cfg types.BootstrapConfig) (ports.BackendPort, error)

	// Hook, when set, runs inside the live session after configure.
	Hook core.SessionHook
}

func NewService() Service {
	return Service{
		Apt:         adapters.NewAptAdapter(),
		Rootfs:      adapters.NewRootfsAdapter(),
		Extractor:   adapters.NewExtractorAdapter(),
		Index:       adapters.NewPackageIndexAdapter(),
		SizeReports: adapters.NewSizeReportAdapter(),
		Manifests:   adapters.NewManifestFileAdapter(),
		HostInfo:    adapters.NewHostInfoAdapter(),
		NewBackend:  adapters.NewBackend,
	}
}
