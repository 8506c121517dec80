package ports

import "rootstrap/internal/types"

// SizeReportPort persists and loads the post-extract size report.
type SizeReportPort interface {
	Write(path string, report types.SizeReport) error
	Read(path string) (types.SizeReport, error)
}

// ManifestPort persists and loads freeze manifests.
type ManifestPort interface {
	Write(path string, manifest types.FreezeManifest) error
	Read(path string) (types.FreezeManifest, error)
}

// HostInfoPort probes the host for configuration defaults.
type HostInfoPort interface {
	// Architecture returns the host dpkg architecture.
	Architecture() (string, error)

	// Suite returns the host distribution codename.
	Suite() (string, error)

	// DetectAptProxy returns the URL of a local apt cache if one is
	// running, or empty.
	DetectAptProxy() string

	// QemuBinary returns the path of the emulation binary for a
	// target architecture, or empty when none is needed.
	QemuBinary(hostArch string, targetArch string) string
}
