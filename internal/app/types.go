package app

import "rootstrap/internal/types"

type BootstrapRequest struct {
	Rootfs           string
	Architecture     string
	Suite            string
	Backend          string
	AptPackages      []string
	Priorities       []string
	IncludeEssential bool
	AptSources       string
	HTTPProxy        string
	SkipUpdate       bool
	ExternalDebs     []string
	PipPackages      []string
	Wheelhouse       string
	Binds            []string
	ConfigureRetry   int
	SkipPhases       []string
	TerminateAfter   string
	SizeReportPath   string
	QemuBinary       string
	ManifestPath     string
}

type BootstrapResult struct {
	Rootfs       string
	PackageCount int
	Phases       []types.PhaseResult
}

type FreezeRequest struct {
	// Input is either a size-report artifact or a rootfs directory
	// with a package database.
	Input        string
	OutputPath   string
	Format       string
	Backend      string
	Architecture string
	Suite        string
	QemuBinary   string
}

type FreezeResult struct {
	Manifest   types.FreezeManifest
	OutputPath string
}

type ReplayRequest struct {
	ManifestPath string
}

type ReplayResult struct {
	Packages []string
}

type ReportRequest struct {
	ReportPath    string
	SortBySize    bool
	HumanReadable bool
}

type ReportResult struct {
	Lines []string
}
