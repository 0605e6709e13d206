// Package sessions owns the live agent sessions: the Session state record
// and the process-wide Manager registry. All mutation of a session's
// fields happens on the goroutine of the request that owns it; the only
// cross-request signals are the stop flag and registry membership.
package sessions

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rushi32/IsoCode/internal/llm"
)

var (
	// ErrSessionNotFound is returned for operations on unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoPendingDiff is returned when a decision arrives for a session
	// with nothing awaiting approval.
	ErrNoPendingDiff = errors.New("no pending diff")
)

// PendingDiff is a proposed file mutation awaiting approve/reject.
// FilePath is workspace-relative with forward slashes.
type PendingDiff struct {
	FilePath string `json:"filePath"`
	Diff     string `json:"diff"`
}

// Session is the full state of one agent conversation.
type Session struct {
	ID        string
	Model     string
	AgentPlus bool
	Workspace string

	Messages []llm.Message

	// At most one pending diff at any time.
	PendingDiff *PendingDiff

	Retries            int
	PlanText           string
	TotalTasks         int
	CompletedTasks     int
	ConsecutiveFinals  int
	StepsWithoutAction int
	Compactions        int
	Steps              int
	DelegationDisabled bool

	Created time.Time
	Updated time.Time

	stop atomic.Bool
}

// Append adds a message and bumps the update stamp.
func (s *Session) Append(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
}

// RequestStop flags the session for cooperative termination. Safe to
// call from any goroutine.
func (s *Session) RequestStop() { s.stop.Store(true) }

// StopRequested reports whether a stop has been requested.
func (s *Session) StopRequested() bool { return s.stop.Load() }

// SetPendingDiff records a proposed mutation, replacing any prior one.
func (s *Session) SetPendingDiff(filePath, diff string) {
	s.PendingDiff = &PendingDiff{FilePath: filePath, Diff: diff}
	s.Updated = time.Now()
}

// TakePendingDiff removes and returns the pending diff.
func (s *Session) TakePendingDiff() (PendingDiff, error) {
	if s.PendingDiff == nil {
		return PendingDiff{}, ErrNoPendingDiff
	}
	d := *s.PendingDiff
	s.PendingDiff = nil
	s.Updated = time.Now()
	return d, nil
}

// NoteProgress increments the completed-task counter, capped at the
// planned total.
func (s *Session) NoteProgress() {
	if s.CompletedTasks < s.TotalTasks {
		s.CompletedTasks++
	}
}
