package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"rootstrap/internal/core"
	"rootstrap/internal/types"
)

// defaultBinds are made visible inside every session unless the
// request names its own: package maintainer scripts need entropy and
// name resolution.
var defaultBinds = []string{"/dev/urandom", "/etc/resolv.conf"}

// resolveConfig merges the request with host-probed defaults into the
// read-only BootstrapConfig every component consumes.
func (s Service) resolveConfig(req BootstrapRequest) (types.BootstrapConfig, error) {
	rootfs := strings.TrimSpace(req.Rootfs)
	if rootfs == "" {
		return types.BootstrapConfig{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rootfs path is required")
	}

	cfg := types.BootstrapConfig{
		Rootfs:              rootfs,
		Backend:             types.BackendKind(strings.TrimSpace(req.Backend)),
		AptPackages:         req.AptPackages,
		IncludeEssential:    req.IncludeEssential,
		HTTPProxy:           strings.TrimSpace(req.HTTPProxy),
		SkipUpdate:          req.SkipUpdate,
		ExternalDebs:        req.ExternalDebs,
		PipPackages:         req.PipPackages,
		Wheelhouse:          strings.TrimSpace(req.Wheelhouse),
		ConfigureRetryCount: req.ConfigureRetry,
		SizeReportPath:      strings.TrimSpace(req.SizeReportPath),
		QemuBinary:          strings.TrimSpace(req.QemuBinary),
	}
	if cfg.Backend == "" {
		cfg.Backend = types.BackendNone
	}
	if cfg.ConfigureRetryCount < 1 {
		cfg.ConfigureRetryCount = 2
	}

	var manifest types.FreezeManifest
	if path := strings.TrimSpace(req.ManifestPath); path != "" {
		loaded, err := s.Manifests.Read(path)
		if err != nil {
			return types.BootstrapConfig{}, err
		}
		pins, err := core.ReplayPins(loaded)
		if err != nil {
			return types.BootstrapConfig{}, err
		}
		manifest = loaded
		cfg.FrozenPackages = pins
	}

	cfg.Architecture = strings.TrimSpace(req.Architecture)
	if cfg.Architecture == "" {
		cfg.Architecture = manifest.Architecture
	}
	if cfg.Architecture == "" {
		arch, err := s.HostInfo.Architecture()
		if err != nil {
			return types.BootstrapConfig{}, err
		}
		cfg.Architecture = arch
	}
	cfg.Suite = strings.TrimSpace(req.Suite)
	if cfg.Suite == "" {
		cfg.Suite = manifest.Suite
	}
	if cfg.Suite == "" {
		suite, err := s.HostInfo.Suite()
		if err != nil {
			return types.BootstrapConfig{}, err
		}
		cfg.Suite = suite
	}

	priorities, err := parsePriorities(req.Priorities)
	if err != nil {
		return types.BootstrapConfig{}, err
	}
	if len(priorities) == 0 && len(cfg.FrozenPackages) == 0 {
		priorities = []types.PriorityClass{
			types.PriorityRequired,
			types.PriorityImportant,
			types.PriorityStandard,
		}
	}
	cfg.IncludePriorities = priorities

	cfg.AptSources = req.AptSources
	if strings.TrimSpace(cfg.AptSources) == "" {
		sources, err := defaultAptSources(cfg.Architecture, cfg.Suite)
		if err != nil {
			return types.BootstrapConfig{}, err
		}
		cfg.AptSources = sources
	}

	if cfg.HTTPProxy == "" {
		cfg.HTTPProxy = s.HostInfo.DetectAptProxy()
	}
	if cfg.QemuBinary == "" {
		hostArch, err := s.HostInfo.Architecture()
		if err == nil {
			cfg.QemuBinary = s.HostInfo.QemuBinary(hostArch, cfg.Architecture)
		}
	}

	binds, err := parseBinds(req.Binds)
	if err != nil {
		return types.BootstrapConfig{}, err
	}
	if len(binds) == 0 {
		for _, path := range defaultBinds {
			spec, err := bindSpecFor(path, path)
			if err != nil {
				log.Debug().Str("path", path).Msg("default bind not present on host, skipping")
				continue
			}
			binds = append(binds, spec)
		}
	}
	cfg.Binds = binds

	cfg.SkipPhases = map[types.Phase]bool{}
	for _, name := range req.SkipPhases {
		phase, ok := types.ParsePhase(strings.TrimSpace(name))
		if !ok {
			return types.BootstrapConfig{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("unknown phase in skip set: " + name)
		}
		cfg.SkipPhases[phase] = true
	}
	if name := strings.TrimSpace(req.TerminateAfter); name != "" {
		phase, ok := types.ParsePhase(name)
		if !ok {
			return types.BootstrapConfig{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("unknown terminate-after phase: " + name)
		}
		cfg.TerminateAfter = phase
	}
	return cfg, nil
}

func parsePriorities(values []string) ([]types.PriorityClass, error) {
	var priorities []types.PriorityClass
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		priority := types.ParsePriority(trimmed)
		if priority == types.PriorityUnknown {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("unknown priority class: " + trimmed)
		}
		priorities = append(priorities, priority)
	}
	return priorities, nil
}

// parseBinds converts "source:target" (or bare "path") strings into
// bind specs, inferring the kind from the source file type.
func parseBinds(values []string) ([]types.BindSpec, error) {
	var binds []types.BindSpec
	for _, value := range values {
		source, target, found := strings.Cut(value, ":")
		if !found {
			target = source
		}
		spec, err := bindSpecFor(source, target)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("bind source does not exist: " + source).
				WithCause(err)
		}
		binds = append(binds, spec)
	}
	return binds, nil
}

func bindSpecFor(source string, target string) (types.BindSpec, error) {
	info, err := os.Stat(source)
	if err != nil {
		return types.BindSpec{}, err
	}
	kind := types.BindFile
	if info.IsDir() {
		kind = types.BindDir
	}
	return types.BindSpec{
		Source: source,
		Target: strings.TrimPrefix(target, "/"),
		Kind:   kind,
	}, nil
}

// defaultAptSources renders the bootstrap sources list for the target
// architecture and suite. The list only lives in the tree for the
// duration of the bootstrap.
func defaultAptSources(arch string, suite string) (string, error) {
	var mirror, archList string
	switch arch {
	case "amd64":
		mirror = "http://us.archive.ubuntu.com/ubuntu"
		archList = "amd64,i386"
	case "arm64", "armhf":
		mirror = "http://www.ports.ubuntu.com/ubuntu-ports"
		archList = arch
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no default sources for architecture " + arch)
	}
	return fmt.Sprintf(
		"deb [arch=%[1]s] %[2]s %[3]s main universe multiverse\n"+
			"deb [arch=%[1]s] %[2]s %[3]s-updates main universe multiverse\n",
		archList, mirror, suite), nil
}
