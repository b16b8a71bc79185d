// Package window runs the close handshake between the host window and its
// frontend.
//
// When the window is asked to close, the host keeps it open, tells the
// frontend a close was requested and waits for the frontend to answer
// "close allowed". Whatever happens the window is closed: on the answer,
// after CloseTimeout, or right away when the request cannot be delivered.
package window

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tektite-io/voicebox/internal/metrics"
)

// CloseTimeout bounds the wait for the frontend's acknowledgement.
const CloseTimeout = 5 * time.Second

// Window is the surface being closed.
type Window interface {
	Close() error
}

// Frontend is the collaborator asked for permission to close.
type Frontend interface {
	// NotifyCloseRequested tells the frontend a close is pending.
	NotifyCloseRequested(sessionID string) error
	// OnCloseAllowed registers fn for acknowledgements and returns a release func.
	OnCloseAllowed(fn func(sessionID string)) (release func())
}

// Handshake coordinates close requests. At most one session is in flight.
type Handshake struct {
	frontend Frontend
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	current *Session
}

// NewHandshake creates a handshake talking to frontend.
func NewHandshake(frontend Frontend, logger *slog.Logger) *Handshake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handshake{
		frontend: frontend,
		logger:   logger,
		timeout:  CloseTimeout,
	}
}

// RequestClose starts a close handshake for w, or joins the one already in
// flight. The caller has already suppressed the default close; w.Close is
// called once the session resolves.
func (h *Handshake) RequestClose(w Window) *Session {
	h.mu.Lock()
	if s := h.current; s != nil {
		h.mu.Unlock()
		h.logger.Debug("Close already in progress", "session_id", s.ID)
		return s
	}
	s := newSession()
	h.current = s
	h.mu.Unlock()

	logger := h.logger.With("session_id", s.ID)
	logger.Info("Window close requested")

	// Listen before returning so an answer to the returned session is never lost.
	release := sync.OnceFunc(h.frontend.OnCloseAllowed(func(sessionID string) {
		if s.matches(sessionID) {
			s.acknowledge()
		} else {
			logger.Debug("Ignoring close acknowledgement for another session", "ack_session_id", sessionID)
		}
	}))

	go h.run(s, w, release, logger)
	return s
}

// Current returns the in-flight session or nil.
func (h *Handshake) Current() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *Handshake) run(s *Session, w Window, release func(), logger *slog.Logger) {
	defer release()

	if err := h.frontend.NotifyCloseRequested(s.ID); err != nil {
		logger.Warn("Failed to notify frontend, closing immediately", "error", err)
		s.resolve(OutcomeEmitFailed, fmt.Errorf("%w: %w", ErrEmitFailed, err))
	} else {
		s.setState(StateWaitingForAck)
		timer := time.NewTimer(h.timeout)
		select {
		case <-s.ack:
			logger.Info("Frontend allowed close")
			s.resolve(OutcomeAcknowledged, nil)
		case <-timer.C:
			logger.Warn("Frontend did not answer close request, closing anyway", "timeout", h.timeout)
			s.resolve(OutcomeTimedOut, nil)
		}
		timer.Stop()
	}

	release()
	s.setState(StateClosing)
	closeErr := w.Close()
	if closeErr != nil {
		logger.Error("Failed to close window", "error", closeErr)
	}

	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()

	s.finish(closeErr)
	elapsed := time.Since(s.StartedAt)
	metrics.RecordCloseHandshake(string(s.Outcome()), elapsed.Seconds())
	logger.Info("Window closed", "outcome", s.Outcome(), "elapsed", elapsed)
}
