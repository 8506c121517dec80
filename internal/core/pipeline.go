package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// SessionHook is a user-supplied callable invoked with the live
// isolation session after configure completes, before the session
// exits, so it can inspect or patch the target tree.
type SessionHook func(ctx context.Context, backend ports.BackendPort, session *types.Session) error

// Pipeline sequences the bootstrap phases against a single target
// tree. One pipeline drives one run; phases execute strictly in order
// on one logical thread of control.
type Pipeline struct {
	Backend     ports.BackendPort
	Apt         ports.AptPort
	Rootfs      ports.RootfsPort
	Extractor   ports.ExtractorPort
	Index       ports.PackageIndexPort
	SizeReports ports.SizeReportPort
	Hook        SessionHook

	packages []string
	records  []types.PackageRecord
}

// RunResult aggregates the outcome of one bootstrap run.
type RunResult struct {
	Records []types.PackageRecord
	Phases  []types.PhaseResult
	Report  types.SizeReport
}

// Run drives the phase state machine. A phase in the skip set is
// omitted but execution continues past it; TerminateAfter stops
// cleanly after the named phase even though later phases were not
// skipped. Any phase failure aborts the remaining pipeline, but
// session and bind cleanup still runs.
func (p *Pipeline) Run(ctx context.Context, cfg types.BootstrapConfig) (RunResult, error) {
	assert.NotEmpty(ctx, cfg.Rootfs, "rootfs must be set")
	assert.NotEmpty(ctx, cfg.Architecture, "architecture must be set")
	assert.NotEmpty(ctx, cfg.Suite, "suite must be set")

	result := RunResult{}
	for _, phase := range types.AllPhases() {
		if err := ctx.Err(); err != nil {
			return result, shared.PhaseFailure(string(phase), err)
		}
		if cfg.Skipped(phase) {
			log.Info().Str("phase", string(phase)).Msg("phase skipped")
		} else {
			phaseResult, err := p.runPhase(ctx, cfg, phase, &result)
			result.Phases = append(result.Phases, phaseResult)
			if err != nil {
				return result, err
			}
		}
		if cfg.TerminateAfter == phase {
			log.Info().Str("phase", string(phase)).Msg("terminating after phase")
			break
		}
	}
	result.Records = p.records
	return result, nil
}

func (p *Pipeline) runPhase(ctx context.Context, cfg types.BootstrapConfig, phase types.Phase, result *RunResult) (types.PhaseResult, error) {
	log.Info().Str("phase", string(phase)).Msg("phase starting")
	var (
		phaseResult types.PhaseResult
		err         error
	)
	switch phase {
	case types.PhaseResolve:
		phaseResult, err = p.resolve(ctx, cfg)
	case types.PhaseDownload:
		phaseResult, err = p.download(ctx, cfg)
	case types.PhaseExtract:
		phaseResult, err = p.extract(ctx, cfg, result)
	case types.PhaseConfigure:
		phaseResult, err = p.configure(ctx, cfg)
	case types.PhasePipInstall:
		phaseResult, err = p.pipInstall(ctx, cfg)
	case types.PhaseClean:
		phaseResult, err = p.clean(ctx, cfg)
	}
	phaseResult.Phase = phase
	if err != nil {
		log.Error().Str("phase", string(phase)).Err(err).Msg("phase failed")
		return phaseResult, err
	}
	log.Info().Str("phase", string(phase)).Int("attempts", phaseResult.Attempts).Msg("phase complete")
	return phaseResult, nil
}

// resolve prepares the tree, refreshes the package lists, and decides
// the package set for this run. An explicit frozen-manifest input
// bypasses priority-based expansion entirely.
func (p *Pipeline) resolve(ctx context.Context, cfg types.BootstrapConfig) (types.PhaseResult, error) {
	failed := types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}
	if err := p.Rootfs.Initialize(cfg); err != nil {
		return failed, err
	}
	if !cfg.SkipUpdate {
		if err := p.Apt.Update(ctx, cfg); err != nil {
			return failed, err
		}
	}

	byName := map[string]types.PackageRecord{}
	if len(cfg.FrozenPackages) > 0 {
		if len(cfg.IncludePriorities) > 0 {
			log.Warn().Msg("frozen manifest supplied, ignoring priority-inclusion set")
		}
		for _, pin := range cfg.FrozenPackages {
			name, version, _ := strings.Cut(pin, "=")
			byName[name] = types.PackageRecord{
				Name:     name,
				Version:  version,
				Priority: types.PriorityUnknown,
				Origin:   types.OriginApt,
			}
		}
	} else {
		defaults, err := p.Index.DefaultPackages(cfg.Rootfs, cfg.IncludeEssential, cfg.IncludePriorities)
		if err != nil {
			return failed, err
		}
		for _, record := range defaults {
			byName[record.Name] = record
		}
	}
	for _, name := range cfg.AptPackages {
		if _, present := byName[name]; !present {
			byName[name] = types.PackageRecord{
				Name:     name,
				Priority: types.PriorityUnknown,
				Origin:   types.OriginApt,
			}
		}
	}
	if len(cfg.PipPackages) > 0 {
		if _, present := byName["python3-pip"]; !present {
			byName["python3-pip"] = types.PackageRecord{
				Name:     "python3-pip",
				Priority: types.PriorityUnknown,
				Origin:   types.OriginApt,
			}
		}
	}

	p.records = p.records[:0]
	p.packages = p.packages[:0]
	for _, record := range byName {
		p.records = append(p.records, record)
	}
	sort.Slice(p.records, func(i, j int) bool {
		return p.records[i].Name < p.records[j].Name
	})
	for _, record := range p.records {
		if len(cfg.FrozenPackages) > 0 && record.Version != "" {
			p.packages = append(p.packages, record.Name+"="+record.Version)
			continue
		}
		p.packages = append(p.packages, record.Name)
	}
	log.Info().Int("count", len(p.packages)).Msg("resolved package set")
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

func (p *Pipeline) download(ctx context.Context, cfg types.BootstrapConfig) (types.PhaseResult, error) {
	failed := types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}
	for _, debPath := range cfg.ExternalDebs {
		if _, err := os.Stat(debPath); err != nil {
			return failed, shared.PhaseFailure("external deb "+debPath, err)
		}
		p.records = append(p.records, debRecord(debPath))
	}
	if err := p.Apt.Download(ctx, cfg, p.packages); err != nil {
		return failed, err
	}
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

// debRecord derives a package record from a .deb file name of the
// usual name_version_arch.deb shape.
func debRecord(path string) types.PackageRecord {
	base := strings.TrimSuffix(filepath.Base(path), ".deb")
	parts := strings.SplitN(base, "_", 3)
	record := types.PackageRecord{
		Name:     parts[0],
		Priority: types.PriorityUnknown,
		Origin:   types.OriginDeb,
	}
	if len(parts) > 1 {
		record.Version = parts[1]
	}
	return record
}

func (p *Pipeline) extract(ctx context.Context, cfg types.BootstrapConfig, result *RunResult) (types.PhaseResult, error) {
	failed := types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}
	report, err := p.Extractor.Unpack(ctx, cfg)
	if err != nil {
		return failed, err
	}
	result.Report = report
	if cfg.SizeReportPath != "" {
		if err := p.SizeReports.Write(cfg.SizeReportPath, report); err != nil {
			return failed, err
		}
	}
	if err := p.Rootfs.Tweak(cfg); err != nil {
		return failed, err
	}
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

// configure runs dpkg --configure -a inside an isolation session,
// retried as a bounded loop because packages configured out of
// dependency order transiently fail and a repeat pass usually
// succeeds. Between attempts no state is rolled back.
func (p *Pipeline) configure(ctx context.Context, cfg types.BootstrapConfig) (types.PhaseResult, error) {
	maxAttempts := cfg.ConfigureRetryCount
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var phaseResult types.PhaseResult
	err := p.withSession(ctx, cfg, nil, func(session *types.Session) error {
		if err := p.Rootfs.WritePolicyScript(cfg.Rootfs); err != nil {
			return err
		}

		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			execResult, err := p.Backend.Execute(ctx, session, []string{"dpkg", "--configure", "-a"}, nil)
			phaseResult = execResult
			phaseResult.Attempts = attempt
			if err == nil {
				phaseResult.Status = types.StatusSuccess
				lastErr = nil
				break
			}
			lastErr = err
			if attempt < maxAttempts {
				phaseResult.Status = types.StatusRetriableFailure
				log.Warn().Int("attempt", attempt).Err(err).Msg("configure failed, retrying")
				continue
			}
			phaseResult.Status = types.StatusFatalFailure
		}
		if lastErr != nil {
			return shared.PhaseFailure(
				fmt.Sprintf("dpkg --configure -a failed after %d attempts", phaseResult.Attempts),
				fmt.Errorf("%w\n%s", lastErr, phaseResult.Output))
		}

		if err := p.Rootfs.RemovePolicyScript(cfg.Rootfs); err != nil {
			return err
		}
		if p.Hook != nil {
			if err := p.Hook(ctx, p.Backend, session); err != nil {
				return shared.PhaseFailure("user hook", err)
			}
		}
		return nil
	})
	if err != nil {
		if phaseResult.Attempts == 0 {
			phaseResult.Attempts = 1
		}
		// A late failure (policy script removal, hook, teardown)
		// fails the phase even though configure itself succeeded.
		phaseResult.Status = types.StatusFatalFailure
		return phaseResult, err
	}
	return phaseResult, nil
}

// pipInstall installs the requested python packages inside a session,
// building wheels into the wheelhouse first so binary extensions are
// not rebuilt on later runs.
func (p *Pipeline) pipInstall(ctx context.Context, cfg types.BootstrapConfig) (types.PhaseResult, error) {
	if len(cfg.PipPackages) == 0 {
		log.Debug().Msg("no pip packages requested")
		return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
	}
	if err := ValidatePipRequirements(cfg.PipPackages); err != nil {
		return types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}, err
	}

	var extraBinds []types.BindSpec
	if cfg.Wheelhouse != "" {
		extraBinds = append(extraBinds, types.BindSpec{
			Source: cfg.Wheelhouse,
			Target: "opt/wheelhouse",
			Kind:   types.BindDir,
		})
	}
	err := p.withSession(ctx, cfg, extraBinds, func(session *types.Session) error {
		if cfg.Wheelhouse == "" {
			if err := os.MkdirAll(filepath.Join(cfg.Rootfs, "opt/wheelhouse"), 0o755); err != nil {
				return shared.PhaseFailure("creating wheelhouse", err)
			}
		}

		commands := [][]string{
			{"pip", "install", "--upgrade", "pip"},
			{"pip", "install", "--upgrade", "wheel", "setuptools"},
			append([]string{"pip", "wheel", "--find-links=/opt/wheelhouse", "--wheel-dir=/opt/wheelhouse"}, cfg.PipPackages...),
			append([]string{"pip", "install", "--upgrade", "--no-index", "--find-links=/opt/wheelhouse"}, cfg.PipPackages...),
		}
		for _, argv := range commands {
			execResult, err := p.Backend.Execute(ctx, session, argv, nil)
			if err != nil {
				return shared.PhaseFailure(shared.QuoteArgs(argv),
					fmt.Errorf("%w\n%s", err, execResult.Output))
			}
		}
		if err := os.RemoveAll(filepath.Join(cfg.Rootfs, "root/.cache/pip")); err != nil {
			return shared.PhaseFailure("purging pip cache", err)
		}
		return nil
	})
	if err != nil {
		return types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}, err
	}
	for _, spec := range cfg.PipPackages {
		name, version := SplitPipRequirement(spec)
		p.records = append(p.records, types.PackageRecord{
			Name:     name,
			Version:  version,
			Priority: types.PriorityUnknown,
			Origin:   types.OriginPip,
		})
	}
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

func (p *Pipeline) clean(ctx context.Context, cfg types.BootstrapConfig) (types.PhaseResult, error) {
	failed := types.PhaseResult{Status: types.StatusFatalFailure, Attempts: 1}
	if err := p.Apt.Clean(ctx, cfg); err != nil {
		return failed, err
	}
	if err := p.Rootfs.RemoveBootstrapArtifacts(cfg); err != nil {
		return failed, err
	}
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

// withSession runs fn inside a freshly entered isolation session. The
// configured binds are staged before entry, and teardown always runs,
// even when staging or fn fails; a teardown failure is reported but
// never masks fn's error.
func (p *Pipeline) withSession(ctx context.Context, cfg types.BootstrapConfig, extra []types.BindSpec, fn func(session *types.Session) error) (err error) {
	session := types.NewSession(cfg.Rootfs)
	defer func() {
		if exitErr := p.Backend.Exit(ctx, session); exitErr != nil {
			log.Warn().Err(exitErr).Msg("session teardown reported failures")
			if err == nil {
				err = exitErr
			}
		}
	}()

	for _, spec := range append(append([]types.BindSpec(nil), cfg.Binds...), extra...) {
		if bindErr := p.Backend.Bind(ctx, session, spec); bindErr != nil {
			return bindErr
		}
	}
	if enterErr := p.Backend.Enter(ctx, session); enterErr != nil {
		return enterErr
	}
	return fn(session)
}
