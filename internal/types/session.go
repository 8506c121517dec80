package types

// SessionState tracks the lifecycle of one isolation session. A
// session is terminal once exited.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionEntered SessionState = "entered"
	SessionExited  SessionState = "exited"
)

// Session is one live entry into the target tree under a given
// backend. It owns the set of currently staged binds for its lifetime
// and is exclusively owned by the pipeline for one phase invocation.
type Session struct {
	Rootfs string
	State  SessionState

	// staged holds binds in staging order; teardown walks it in
	// reverse so nested binds come down innermost-first.
	staged []BindSpec
}

// NewSession returns a session in the created state.
func NewSession(rootfs string) *Session {
	return &Session{Rootfs: rootfs, State: SessionCreated}
}

// RecordStaged appends a bind to the staged set unless an identical
// spec is already present, which keeps re-binding idempotent.
func (s *Session) RecordStaged(spec BindSpec) bool {
	for _, existing := range s.staged {
		if existing == spec {
			return false
		}
	}
	s.staged = append(s.staged, spec)
	return true
}

// HasStaged reports whether an identical spec is already staged.
func (s *Session) HasStaged(spec BindSpec) bool {
	for _, existing := range s.staged {
		if existing == spec {
			return true
		}
	}
	return false
}

// Staged returns a copy of the staged binds in staging order.
func (s *Session) Staged() []BindSpec {
	return append([]BindSpec(nil), s.staged...)
}

// DrainStaged returns the staged binds in reverse staging order and
// clears the set, so each bind is torn down exactly once.
func (s *Session) DrainStaged() []BindSpec {
	reversed := make([]BindSpec, 0, len(s.staged))
	for i := len(s.staged) - 1; i >= 0; i-- {
		reversed = append(reversed, s.staged[i])
	}
	s.staged = nil
	return reversed
}

// StagedCount reports how many binds are currently staged.
func (s *Session) StagedCount() int {
	return len(s.staged)
}

// PhaseResult is the outcome of one pipeline phase.
type PhaseResult struct {
	Phase    Phase
	Status   PhaseStatus
	Attempts int
	Output   string
}
