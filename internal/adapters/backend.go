package adapters

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
	"rootstrap/internal/shared"
	"rootstrap/internal/types"
)

// NewBackend dispatches the configured backend kind to its variant.
// The set is closed; selection happens once at startup.
func NewBackend(cfg types.BootstrapConfig) (ports.BackendPort, error) {
	switch cfg.Backend {
	case types.BackendNone, "":
		return NewNoneBackend(cfg), nil
	case types.BackendChroot:
		return NewChrootBackend(cfg), nil
	case types.BackendUserNS:
		return NewUserNSBackend(cfg), nil
	case types.BackendProot:
		return NewProotBackend(cfg), nil
	default:
		return nil, shared.BackendUnavailable("unknown backend kind " + string(cfg.Backend))
	}
}

// baseEnv is the environment every backend exports into the target
// tree; caller env is merged on top of it.
func baseEnv() map[string]string {
	return map[string]string{
		"DEBIAN_FRONTEND": "noninteractive",
		"LANG":            "en_US.UTF-8",
		"LANGUAGE":        "en_US",
		"LC_ALL":          "C",
		"PATH": strings.Join([]string{
			"/usr/local/sbin",
			"/usr/local/bin",
			"/usr/sbin",
			"/usr/bin",
			"/sbin",
			"/bin",
		}, ":"),
	}
}

func mergeEnv(base map[string]string, extra map[string]string) []string {
	merged := map[string]string{}
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// lineOutput is an io.Writer that splits child output into lines,
// down-samples them to the log, and keeps a bounded tail for phase
// diagnostics. Being a Writer, it drains the stream as the child
// produces it, so a chatty child never blocks on a full pipe.
type lineOutput struct {
	mu      sync.Mutex
	partial bytes.Buffer
	tail    []string
	lines   int
}

const outputTailLimit = 200

func (w *lineOutput) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial.Write(p)
	for {
		chunk := w.partial.Bytes()
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(chunk[:idx]), "\r")
		w.partial.Next(idx + 1)
		w.record(line)
	}
	return len(p), nil
}

func (w *lineOutput) record(line string) {
	w.lines++
	log.Debug().Msg(line)
	w.tail = append(w.tail, line)
	if len(w.tail) > outputTailLimit {
		w.tail = w.tail[1:]
	}
}

// Tail returns the captured trailing output, including any final
// unterminated line.
func (w *lineOutput) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := append([]string(nil), w.tail...)
	if rest := strings.TrimRight(w.partial.String(), "\r\n"); rest != "" {
		lines = append(lines, rest)
	}
	return strings.Join(lines, "\n")
}

// runCommand executes prefix+argv, streaming combined output through a
// lineOutput. The exit status is carried in the PhaseResult.
func runCommand(ctx context.Context, prefix []string, argv []string, env []string) (types.PhaseResult, error) {
	full := append(append([]string(nil), prefix...), argv...)
	log.Debug().Str("cmd", shared.QuoteArgs(full)).Msg("executing")

	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	cmd.Env = env
	output := &lineOutput{}
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	result := types.PhaseResult{
		Status:   types.StatusSuccess,
		Attempts: 1,
		Output:   output.Tail(),
	}
	if err != nil {
		result.Status = types.StatusFatalFailure
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Debug().Int("exit_code", exitErr.ExitCode()).Str("cmd", shared.QuoteArgs(full)).Msg("command failed")
			return result, err
		}
		return result, err
	}
	return result, nil
}

// exitSession tears down every staged bind in reverse staging order
// and marks the session exited. Every unstage is attempted even when
// earlier ones fail; the joined error is returned for reporting but
// callers must not let it mask a prior phase error.
func exitSession(stager ports.StagerPort, session *types.Session) error {
	if session.State == types.SessionExited {
		return nil
	}
	var errs []error
	for _, spec := range session.DrainStaged() {
		if err := stager.Unstage(session.Rootfs, spec); err != nil {
			log.Warn().Str("target", spec.Target).Err(err).Msg("bind teardown failed")
			errs = append(errs, err)
		}
	}
	session.State = types.SessionExited
	return errors.Join(errs...)
}

// stageBind stages a spec unless the session has already staged an
// identical one.
func stageBind(stager ports.StagerPort, session *types.Session, spec types.BindSpec) error {
	if session.State == types.SessionExited {
		return shared.StageError("bind on exited session", nil)
	}
	if session.HasStaged(spec) {
		return nil
	}
	if err := stager.Stage(session.Rootfs, spec); err != nil {
		return err
	}
	session.RecordStaged(spec)
	return nil
}
