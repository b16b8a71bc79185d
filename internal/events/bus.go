package events

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus errors.
var (
	ErrBusClosed    = errors.New("event bus closed")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
	closed     atomic.Bool
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Delivery is asynchronous; a nil error only means the event was queued.
// Usage: err := bus.Publish(WindowCloseRequestedEvent{...})
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case WindowCloseRequestedEvent:
		event.Publish(b.dispatcher, e)
	case WindowCloseAllowedEvent:
		event.Publish(b.dispatcher, e)
	case SidecarStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SidecarOutputEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case SettingsChangedEvent:
		event.Publish(b.dispatcher, e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return nil
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e WindowCloseAllowedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WindowCloseRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WindowCloseAllowedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SidecarStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SidecarOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// Close makes every later Publish fail with ErrBusClosed.
// Existing subscriptions stay valid until released.
func (b *Bus) Close() {
	b.closed.Store(true)
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	return b.closed.Load()
}
