package window

import (
	"time"

	"github.com/tektite-io/voicebox/internal/events"
)

// BusFrontend reaches the frontend through the event bus: close requests go
// out as WindowCloseRequestedEvent and answers arrive as WindowCloseAllowedEvent.
type BusFrontend struct {
	bus *events.Bus
}

// NewBusFrontend creates a Frontend backed by bus.
func NewBusFrontend(bus *events.Bus) *BusFrontend {
	return &BusFrontend{bus: bus}
}

// NotifyCloseRequested implements Frontend.
func (f *BusFrontend) NotifyCloseRequested(sessionID string) error {
	return f.bus.Publish(events.WindowCloseRequestedEvent{
		SessionID: sessionID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// OnCloseAllowed implements Frontend.
func (f *BusFrontend) OnCloseAllowed(fn func(sessionID string)) func() {
	return f.bus.Subscribe(func(e events.WindowCloseAllowedEvent) {
		fn(e.SessionID)
	})
}
