package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges a kelindar/event subscription to a channel for
// Huma's select based SSE loop. Events are dropped when ch is full so a slow
// client never stalls the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeFrontendStream subscribes to every event the web frontend
// consumes. Close requests go to control, everything else to ch, so a burst
// of worker output cannot crowd a close request out of a full ch.
func SubscribeFrontendStream(bus *Bus, ch, control chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[WindowCloseRequestedEvent](bus, control),
		SubscribeToChannel[SidecarStateChangedEvent](bus, ch),
		SubscribeToChannel[SidecarOutputEvent](bus, ch),
		SubscribeToChannel[SettingsChangedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
