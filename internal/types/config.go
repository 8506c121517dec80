package types

// BindSpec names a file or directory made visible inside the target
// tree for the duration of an isolated session. Target is relative to
// the rootfs root.
type BindSpec struct {
	Source string   `yaml:"source"`
	Target string   `yaml:"target"`
	Kind   BindKind `yaml:"kind"`
}

// BootstrapConfig is the resolved, post-merge option set for one run.
// It is constructed once by the application layer and read-only for
// every component afterwards.
type BootstrapConfig struct {
	Rootfs       string
	Architecture string
	Suite        string
	Backend      BackendKind

	AptPackages       []string
	IncludePriorities []PriorityClass
	IncludeEssential  bool
	AptSources        string
	HTTPProxy         string
	SkipUpdate        bool

	ExternalDebs []string
	PipPackages  []string
	Wheelhouse   string

	Binds               []BindSpec
	ConfigureRetryCount int
	SkipPhases          map[Phase]bool
	TerminateAfter      Phase
	SizeReportPath      string
	QemuBinary          string

	// FrozenPackages, when non-empty, is an explicit name=version pin
	// list from a replayed manifest. It bypasses priority expansion in
	// the resolve phase entirely.
	FrozenPackages []string
}

// Skipped reports whether the given phase is in the skip set.
func (c BootstrapConfig) Skipped(phase Phase) bool {
	return c.SkipPhases[phase]
}
