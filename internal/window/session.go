package window

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmitFailed is recorded on a session whose close request could not be
// delivered to the frontend. The window is closed anyway.
var ErrEmitFailed = errors.New("close request notification failed")

// SessionState is the progress of a close handshake.
type SessionState string

// Session states.
const (
	StateRequested     SessionState = "requested"
	StateWaitingForAck SessionState = "waiting_for_ack"
	StateClosing       SessionState = "closing"
	StateDone          SessionState = "done"
)

// Outcome is how a close handshake resolved.
type Outcome string

// Handshake outcomes.
const (
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeEmitFailed   Outcome = "emit_failed"
)

// Session is one close handshake. It is created by Handshake.RequestClose.
type Session struct {
	ID        string
	StartedAt time.Time

	ack     chan struct{}
	ackOnce sync.Once
	done    chan struct{}

	mu      sync.Mutex
	state   SessionState
	outcome Outcome
	err     error
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		ack:       make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateRequested,
	}
}

// acknowledge records the frontend's answer. Safe to call repeatedly.
func (s *Session) acknowledge() {
	s.ackOnce.Do(func() { close(s.ack) })
}

// matches reports whether an ack for sessionID belongs to this session.
// An empty ID acknowledges whatever session is in flight.
func (s *Session) matches(sessionID string) bool {
	return sessionID == "" || sessionID == s.ID
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) resolve(outcome Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
	s.err = err
}

func (s *Session) finish(closeErr error) {
	s.mu.Lock()
	s.state = StateDone
	if closeErr != nil {
		s.err = errors.Join(s.err, closeErr)
	}
	s.mu.Unlock()
	close(s.done)
}

// Done is closed once the window has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current handshake state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns how the handshake resolved, empty while waiting.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Err returns the emit or close error of a finished session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
