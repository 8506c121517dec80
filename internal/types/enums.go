package types

// PriorityClass is the package-manager importance tier used to decide
// default inclusion when expanding the package set.
type PriorityClass string

const (
	PriorityRequired  PriorityClass = "required"
	PriorityImportant PriorityClass = "important"
	PriorityStandard  PriorityClass = "standard"
	PriorityOptional  PriorityClass = "optional"
	PriorityExtra     PriorityClass = "extra"
	PriorityUnknown   PriorityClass = "unknown"
)

// ParsePriority maps a Packages-file Priority field to a PriorityClass,
// folding anything unrecognized into PriorityUnknown.
func ParsePriority(value string) PriorityClass {
	switch PriorityClass(value) {
	case PriorityRequired, PriorityImportant, PriorityStandard,
		PriorityOptional, PriorityExtra:
		return PriorityClass(value)
	default:
		return PriorityUnknown
	}
}

// PackageOrigin records how a package entered the bootstrap.
type PackageOrigin string

const (
	OriginApt PackageOrigin = "apt"
	OriginDeb PackageOrigin = "deb"
	OriginPip PackageOrigin = "pip"
)

// BackendKind selects the isolation backend variant.
type BackendKind string

const (
	BackendNone   BackendKind = "none"
	BackendChroot BackendKind = "chroot"
	BackendUserNS BackendKind = "userns"
	BackendProot  BackendKind = "proot"
)

// Phase names one step of the bootstrap pipeline.
type Phase string

const (
	PhaseResolve    Phase = "resolve"
	PhaseDownload   Phase = "download"
	PhaseExtract    Phase = "extract"
	PhaseConfigure  Phase = "configure"
	PhasePipInstall Phase = "pip-install"
	PhaseClean      Phase = "clean"
)

// AllPhases returns the fixed pipeline order.
func AllPhases() []Phase {
	return []Phase{
		PhaseResolve,
		PhaseDownload,
		PhaseExtract,
		PhaseConfigure,
		PhasePipInstall,
		PhaseClean,
	}
}

// ParsePhase validates a phase name from configuration.
func ParsePhase(value string) (Phase, bool) {
	for _, phase := range AllPhases() {
		if string(phase) == value {
			return phase, true
		}
	}
	return "", false
}

// BindKind distinguishes file binds (copied in, deleted on exit) from
// directory binds (mounted or emulated, unmounted on exit).
type BindKind string

const (
	BindFile BindKind = "file"
	BindDir  BindKind = "dir"
)

// PhaseStatus is the outcome classification of one phase attempt.
type PhaseStatus string

const (
	StatusSuccess          PhaseStatus = "success"
	StatusRetriableFailure PhaseStatus = "retriable-failure"
	StatusFatalFailure     PhaseStatus = "fatal-failure"
)
