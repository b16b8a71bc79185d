// Package frontend holds the host side stand-ins for the web frontend: the
// built-in window close handler and the persisted frontend settings.
package frontend

import (
	"log/slog"
	"time"

	"github.com/tektite-io/voicebox/internal/events"
)

// SourceBuiltin marks acknowledgements sent by the CloseHandler.
const SourceBuiltin = "builtin"

// Stopper stops the worker.
type Stopper interface {
	Stop() error
}

// KeepRunning reports whether the worker should outlive the window.
type KeepRunning interface {
	KeepServerRunningOnClose() bool
}

// CloseHandler answers window close requests on the bus: it stops the worker
// unless the user asked to keep it running, then allows the close.
type CloseHandler struct {
	bus     *events.Bus
	stopper Stopper
	keep    KeepRunning
	logger  *slog.Logger
}

// NewCloseHandler creates a handler. keep may be nil, meaning always stop.
func NewCloseHandler(bus *events.Bus, stopper Stopper, keep KeepRunning, logger *slog.Logger) *CloseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloseHandler{bus: bus, stopper: stopper, keep: keep, logger: logger}
}

// Attach subscribes the handler and returns the release function.
func (h *CloseHandler) Attach() func() {
	return h.bus.Subscribe(h.HandleCloseRequested)
}

// HandleCloseRequested stops the worker if needed and acknowledges the
// session. Stop failures are logged; the close is allowed regardless.
func (h *CloseHandler) HandleCloseRequested(e events.WindowCloseRequestedEvent) {
	if h.keep != nil && h.keep.KeepServerRunningOnClose() {
		h.logger.Info("Keeping server running after window close", "session_id", e.SessionID)
	} else if err := h.stopper.Stop(); err != nil {
		h.logger.Error("Failed to stop server on close", "session_id", e.SessionID, "error", err)
	}

	err := h.bus.Publish(events.WindowCloseAllowedEvent{
		SessionID: e.SessionID,
		Source:    SourceBuiltin,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("Failed to allow window close", "session_id", e.SessionID, "error", err)
	}
}
