package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// ---------- fakes ----------

type fakeBackend struct {
	calls []string

	// configureFailures makes the first N dpkg --configure runs fail.
	configureFailures int
	executeErr        error
	enterErr          error
	exitErr           error
}

func (b *fakeBackend) Kind() types.BackendKind { return types.BackendNone }

func (b *fakeBackend) Enter(_ context.Context, session *types.Session) error {
	b.calls = append(b.calls, "enter")
	if b.enterErr != nil {
		return b.enterErr
	}
	session.State = types.SessionEntered
	return nil
}

func (b *fakeBackend) Execute(_ context.Context, _ *types.Session, argv []string, _ map[string]string) (types.PhaseResult, error) {
	b.calls = append(b.calls, "execute "+shared.QuoteArgs(argv))
	if b.executeErr != nil {
		return types.PhaseResult{Status: types.StatusFatalFailure, Output: "simulated output"}, b.executeErr
	}
	if len(argv) > 1 && argv[1] == "--configure" && b.configureFailures > 0 {
		b.configureFailures--
		return types.PhaseResult{Status: types.StatusFatalFailure, Output: "dependency not configured"}, errors.New("exit status 1")
	}
	return types.PhaseResult{Status: types.StatusSuccess, Attempts: 1}, nil
}

func (b *fakeBackend) Bind(_ context.Context, session *types.Session, spec types.BindSpec) error {
	b.calls = append(b.calls, "bind "+spec.Source)
	session.RecordStaged(spec)
	return nil
}

func (b *fakeBackend) Exit(_ context.Context, session *types.Session) error {
	if session.State == types.SessionExited {
		return nil
	}
	for _, spec := range session.DrainStaged() {
		b.calls = append(b.calls, "unstage "+spec.Source)
	}
	b.calls = append(b.calls, "exit")
	session.State = types.SessionExited
	return b.exitErr
}

type fakeApt struct {
	calls      []string
	downloaded []string
	updateErr  error
}

func (a *fakeApt) Update(_ context.Context, _ types.BootstrapConfig) error {
	a.calls = append(a.calls, "update")
	return a.updateErr
}

func (a *fakeApt) Download(_ context.Context, _ types.BootstrapConfig, packages []string) error {
	a.calls = append(a.calls, "download")
	a.downloaded = append([]string(nil), packages...)
	return nil
}

func (a *fakeApt) Clean(_ context.Context, _ types.BootstrapConfig) error {
	a.calls = append(a.calls, "clean")
	return nil
}

type fakeRootfs struct {
	calls []string
}

func (r *fakeRootfs) Initialize(_ types.BootstrapConfig) error {
	r.calls = append(r.calls, "initialize")
	return nil
}

func (r *fakeRootfs) Tweak(_ types.BootstrapConfig) error {
	r.calls = append(r.calls, "tweak")
	return nil
}

func (r *fakeRootfs) WritePolicyScript(_ string) error {
	r.calls = append(r.calls, "write-policy")
	return nil
}

func (r *fakeRootfs) RemovePolicyScript(_ string) error {
	r.calls = append(r.calls, "remove-policy")
	return nil
}

func (r *fakeRootfs) RemoveBootstrapArtifacts(_ types.BootstrapConfig) error {
	r.calls = append(r.calls, "remove-artifacts")
	return nil
}

type fakeExtractor struct {
	report types.SizeReport
	err    error
	calls  int
}

func (e *fakeExtractor) Unpack(_ context.Context, _ types.BootstrapConfig) (types.SizeReport, error) {
	e.calls++
	return e.report, e.err
}

type fakeIndex struct {
	records []types.PackageRecord
	calls   int
}

func (i *fakeIndex) DefaultPackages(_ string, _ bool, _ []types.PriorityClass) ([]types.PackageRecord, error) {
	i.calls++
	return i.records, nil
}

type fakeReports struct {
	written map[string]types.SizeReport
}

func (r *fakeReports) Write(path string, report types.SizeReport) error {
	if r.written == nil {
		r.written = map[string]types.SizeReport{}
	}
	r.written[path] = report
	return nil
}

func (r *fakeReports) Read(_ string) (types.SizeReport, error) {
	return types.SizeReport{}, errors.New("not implemented")
}

var (
	_ ports.BackendPort      = (*fakeBackend)(nil)
	_ ports.AptPort          = (*fakeApt)(nil)
	_ ports.RootfsPort       = (*fakeRootfs)(nil)
	_ ports.ExtractorPort    = (*fakeExtractor)(nil)
	_ ports.PackageIndexPort = (*fakeIndex)(nil)
	_ ports.SizeReportPort   = (*fakeReports)(nil)
)

type pipelineFixture struct {
	pipeline  *Pipeline
	backend   *fakeBackend
	apt       *fakeApt
	rootfs    *fakeRootfs
	extractor *fakeExtractor
	index     *fakeIndex
	reports   *fakeReports
}

func newPipelineFixture() pipelineFixture {
	backend := &fakeBackend{}
	apt := &fakeApt{}
	rootfs := &fakeRootfs{}
	extractor := &fakeExtractor{report: types.SizeReport{Architecture: "amd64", Suite: "noble"}}
	index := &fakeIndex{records: []types.PackageRecord{
		{Name: "base-files", Version: "13ubuntu10", Priority: types.PriorityRequired, Origin: types.OriginApt},
		{Name: "bash", Version: "5.2.21-2ubuntu4", Priority: types.PriorityRequired, Origin: types.OriginApt},
	}}
	reports := &fakeReports{}
	return pipelineFixture{
		pipeline: &Pipeline{
			Backend:     backend,
			Apt:         apt,
			Rootfs:      rootfs,
			Extractor:   extractor,
			Index:       index,
			SizeReports: reports,
		},
		backend:   backend,
		apt:       apt,
		rootfs:    rootfs,
		extractor: extractor,
		index:     index,
		reports:   reports,
	}
}

func baseConfig(t *testing.T) types.BootstrapConfig {
	t.Helper()
	return types.BootstrapConfig{
		Rootfs:              t.TempDir(),
		Architecture:        "amd64",
		Suite:               "noble",
		Backend:             types.BackendNone,
		IncludePriorities:   []types.PriorityClass{types.PriorityRequired},
		ConfigureRetryCount: 2,
	}
}

// ---------- tests ----------

func TestRunAllPhasesInOrder(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	phases := make([]types.Phase, 0, len(result.Phases))
	for _, phase := range result.Phases {
		phases = append(phases, phase.Phase)
		assert.Equal(t, types.StatusSuccess, phase.Status, string(phase.Phase))
	}
	if diff := cmp.Diff(types.AllPhases(), phases); diff != "" {
		t.Fatalf("phase order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"update", "download", "clean"}, fixture.apt.calls)
	assert.Equal(t, []string{"initialize", "tweak", "write-policy", "remove-policy", "remove-artifacts"}, fixture.rootfs.calls)
	assert.Equal(t, []string{"base-files", "bash"}, fixture.apt.downloaded)
	require.Len(t, result.Records, 2)
}

func TestRunSkippedPhaseNeverInvoked(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.SkipPhases = map[types.Phase]bool{
		types.PhaseConfigure: true,
		types.PhaseClean:     true,
	}

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	for _, phase := range result.Phases {
		assert.NotEqual(t, types.PhaseConfigure, phase.Phase)
		assert.NotEqual(t, types.PhaseClean, phase.Phase)
	}
	assert.NotContains(t, fixture.rootfs.calls, "write-policy")
	assert.NotContains(t, fixture.apt.calls, "clean")
	assert.Empty(t, fixture.backend.calls)
}

func TestRunTerminateAfterStopsCleanly(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.TerminateAfter = types.PhaseDownload

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, result.Phases, 2)
	assert.Equal(t, types.PhaseResolve, result.Phases[0].Phase)
	assert.Equal(t, types.PhaseDownload, result.Phases[1].Phase)
	assert.Equal(t, 0, fixture.extractor.calls)
	assert.Empty(t, fixture.backend.calls)
}

func TestRunSkipUpdate(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.SkipUpdate = true
	cfg.TerminateAfter = types.PhaseResolve

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotContains(t, fixture.apt.calls, "update")
}

func TestRunPhaseFailureAborts(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.apt.updateErr = shared.PhaseFailure("apt-get update", errors.New("exit status 100"))
	cfg := baseConfig(t)

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, shared.IsPhaseFailure(err))

	require.Len(t, result.Phases, 1)
	assert.Equal(t, types.PhaseResolve, result.Phases[0].Phase)
	assert.Equal(t, types.StatusFatalFailure, result.Phases[0].Status)
	assert.Equal(t, 0, fixture.extractor.calls)
}

func TestConfigureRetriesUpToCount(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.backend.configureFailures = 5
	cfg := baseConfig(t)
	cfg.ConfigureRetryCount = 3

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, shared.IsPhaseFailure(err))

	configures := 0
	for _, call := range fixture.backend.calls {
		if call == "execute dpkg --configure -a" {
			configures++
		}
	}
	assert.Equal(t, 3, configures)

	last := result.Phases[len(result.Phases)-1]
	assert.Equal(t, types.PhaseConfigure, last.Phase)
	assert.Equal(t, types.StatusFatalFailure, last.Status)
	assert.Equal(t, 3, last.Attempts)
}

func TestConfigureSucceedsOnLaterAttempt(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.backend.configureFailures = 1
	cfg := baseConfig(t)
	cfg.ConfigureRetryCount = 3

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	var configure types.PhaseResult
	for _, phase := range result.Phases {
		if phase.Phase == types.PhaseConfigure {
			configure = phase
		}
	}
	assert.Equal(t, types.StatusSuccess, configure.Status)
	assert.Equal(t, 2, configure.Attempts)
}

func TestConfigureSessionLifecycle(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.Binds = []types.BindSpec{
		{Source: "/dev/urandom", Target: "dev/urandom", Kind: types.BindFile},
		{Source: "/etc/resolv.conf", Target: "etc/resolv.conf", Kind: types.BindFile},
	}
	cfg.TerminateAfter = types.PhaseConfigure

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	expected := []string{
		"bind /dev/urandom",
		"bind /etc/resolv.conf",
		"enter",
		"execute dpkg --configure -a",
		"unstage /etc/resolv.conf",
		"unstage /dev/urandom",
		"exit",
	}
	if diff := cmp.Diff(expected, fixture.backend.calls); diff != "" {
		t.Fatalf("session call order mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigureTeardownRunsOnFailure(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.backend.configureFailures = 5
	cfg := baseConfig(t)
	cfg.Binds = []types.BindSpec{{Source: "/dev/urandom", Target: "dev/urandom", Kind: types.BindFile}}
	cfg.ConfigureRetryCount = 1

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, fixture.backend.calls, "unstage /dev/urandom")
	assert.Contains(t, fixture.backend.calls, "exit")
}

func TestConfigureTeardownErrorDoesNotMaskPhaseError(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.backend.configureFailures = 5
	fixture.backend.exitErr = errors.New("umount: target busy")
	cfg := baseConfig(t)
	cfg.ConfigureRetryCount = 1

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, shared.IsPhaseFailure(err))
	assert.NotContains(t, err.Error(), "target busy")
}

func TestConfigureEnterFailurePropagates(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.backend.enterErr = shared.InsufficientPrivilege("chroot backend requires root")
	cfg := baseConfig(t)

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, shared.IsInsufficientPrivilege(err))
}

func TestHookRunsAfterConfigure(t *testing.T) {
	fixture := newPipelineFixture()
	hookRan := false
	fixture.pipeline.Hook = func(_ context.Context, _ ports.BackendPort, session *types.Session) error {
		hookRan = true
		assert.Equal(t, types.SessionEntered, session.State)
		return nil
	}
	cfg := baseConfig(t)

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, hookRan)
}

func TestHookFailureIsFatal(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.pipeline.Hook = func(context.Context, ports.BackendPort, *types.Session) error {
		return errors.New("hook exploded")
	}
	cfg := baseConfig(t)

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, shared.IsPhaseFailure(err))
	last := result.Phases[len(result.Phases)-1]
	assert.Equal(t, types.PhaseConfigure, last.Phase)
	assert.Equal(t, types.StatusFatalFailure, last.Status)
	// The hook never triggers a configure retry.
	configures := 0
	for _, call := range fixture.backend.calls {
		if call == "execute dpkg --configure -a" {
			configures++
		}
	}
	assert.Equal(t, 1, configures)
}

func TestResolveFrozenManifestBypassesIndex(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.FrozenPackages = []string{"bash=5.2.21-2ubuntu4", "wget=1.21.4-1ubuntu4"}
	cfg.TerminateAfter = types.PhaseDownload

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, fixture.index.calls)
	assert.Equal(t, []string{"bash=5.2.21-2ubuntu4", "wget=1.21.4-1ubuntu4"}, fixture.apt.downloaded)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "bash", result.Records[0].Name)
	assert.Equal(t, "5.2.21-2ubuntu4", result.Records[0].Version)
}

func TestResolveUnionsExplicitPackages(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.AptPackages = []string{"wget", "bash"}
	cfg.TerminateAfter = types.PhaseDownload

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"base-files", "bash", "wget"}, fixture.apt.downloaded)
}

func TestResolveAddsPipBootstrapPackage(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.PipPackages = []string{"requests==2.31.0"}
	cfg.TerminateAfter = types.PhaseDownload

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Contains(t, fixture.apt.downloaded, "python3-pip")
}

func TestDownloadRecordsExternalDebOrigins(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	debPath := filepath.Join(t.TempDir(), "cowsay_3.03+dfsg2-8_all.deb")
	require.NoError(t, os.WriteFile(debPath, []byte("!<arch>\n"), 0o644))
	cfg.ExternalDebs = []string{debPath}
	cfg.TerminateAfter = types.PhaseDownload

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	var debs []types.PackageRecord
	for _, record := range result.Records {
		if record.Origin == types.OriginDeb {
			debs = append(debs, record)
		}
	}
	want := []types.PackageRecord{
		{Name: "cowsay", Version: "3.03+dfsg2-8", Priority: types.PriorityUnknown, Origin: types.OriginDeb},
	}
	if diff := cmp.Diff(want, debs); diff != "" {
		t.Fatalf("deb record mismatch (-want +got):\n%s", diff)
	}
}

func TestPipInstallRecordsRequestedPackages(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.PipPackages = []string{"requests==2.31.0", "rich"}
	cfg.SkipPhases = map[types.Phase]bool{types.PhaseConfigure: true}
	cfg.TerminateAfter = types.PhasePipInstall

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	var pips []types.PackageRecord
	for _, record := range result.Records {
		if record.Origin == types.OriginPip {
			pips = append(pips, record)
		}
	}
	want := []types.PackageRecord{
		{Name: "requests", Version: "2.31.0", Priority: types.PriorityUnknown, Origin: types.OriginPip},
		{Name: "rich", Priority: types.PriorityUnknown, Origin: types.OriginPip},
	}
	if diff := cmp.Diff(want, pips); diff != "" {
		t.Fatalf("pip record mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractWritesSizeReport(t *testing.T) {
	fixture := newPipelineFixture()
	fixture.extractor.report = types.SizeReport{
		Architecture: "amd64",
		Suite:        "noble",
		Entries:      []types.SizeReportEntry{{Name: "bash", Version: "5.2.21-2ubuntu4"}},
	}
	cfg := baseConfig(t)
	cfg.SizeReportPath = filepath.Join(t.TempDir(), "size.json")
	cfg.TerminateAfter = types.PhaseExtract

	result, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, fixture.extractor.report, result.Report)
	assert.Equal(t, fixture.extractor.report, fixture.reports.written[cfg.SizeReportPath])
}

func TestPipInstallSkippedWithoutPackages(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.SkipPhases = map[types.Phase]bool{types.PhaseConfigure: true}
	cfg.TerminateAfter = types.PhasePipInstall

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, fixture.backend.calls)
}

func TestPipInstallCommandSequence(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.PipPackages = []string{"requests==2.31.0"}
	cfg.SkipPhases = map[types.Phase]bool{types.PhaseConfigure: true}
	cfg.TerminateAfter = types.PhasePipInstall

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	expected := []string{
		"enter",
		"execute pip install --upgrade pip",
		"execute pip install --upgrade wheel setuptools",
		"execute pip wheel --find-links=/opt/wheelhouse --wheel-dir=/opt/wheelhouse requests==2.31.0",
		"execute pip install --upgrade --no-index --find-links=/opt/wheelhouse requests==2.31.0",
		"exit",
	}
	if diff := cmp.Diff(expected, fixture.backend.calls); diff != "" {
		t.Fatalf("pip call order mismatch (-want +got):\n%s", diff)
	}
}

func TestPipInstallStagesWheelhouseBeforeEnter(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.PipPackages = []string{"requests"}
	cfg.Wheelhouse = t.TempDir()
	cfg.SkipPhases = map[types.Phase]bool{types.PhaseConfigure: true}
	cfg.TerminateAfter = types.PhasePipInstall

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, fixture.backend.calls)
	assert.Equal(t, "bind "+cfg.Wheelhouse, fixture.backend.calls[0])
	assert.Equal(t, "enter", fixture.backend.calls[1])
}

func TestPipInstallRejectsBadRequirement(t *testing.T) {
	fixture := newPipelineFixture()
	cfg := baseConfig(t)
	cfg.PipPackages = []string{"requests==!broken!"}
	cfg.SkipPhases = map[types.Phase]bool{types.PhaseConfigure: true}

	_, err := fixture.pipeline.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Empty(t, fixture.backend.calls)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	fixture := newPipelineFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixture.pipeline.Run(ctx, baseConfig(t))
	require.Error(t, err)
	assert.True(t, shared.IsPhaseFailure(err))
	assert.Empty(t, fixture.apt.calls)
}
