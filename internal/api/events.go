package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/tektite-io/voicebox/internal/events"
)

// frontendEventTypes maps SSE event names to payload types.
var frontendEventTypes = map[string]any{
	"window-close-requested": events.WindowCloseRequestedEvent{},
	"sidecar-state-changed":  events.SidecarStateChangedEvent{},
	"sidecar-output":         events.SidecarOutputEvent{},
	"settings-changed":       events.SettingsChangedEvent{},
	"log-entry":              events.LogEntryEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Close requests, worker state changes, worker output, settings changes and log entries. " +
			"The first event is the current worker state.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, frontendEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Worker output can be bursty during startup
		eventCh := make(chan any, 256)
		// Close requests are rare and must not be dropped behind output
		controlCh := make(chan any, 16)

		unsubFrontend := events.SubscribeFrontendStream(s.eventBus, eventCh, controlCh)
		defer unsubFrontend()
		unsubLogs := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubLogs()

		if err := send.Data(s.currentStateEvent()); err != nil {
			return
		}

		for {
			var event any
			select {
			case event = <-controlCh:
			default:
				select {
				case <-ctx.Done():
					return
				case event = <-controlCh:
				case event = <-eventCh:
				}
			}
			if err := send.Data(event); err != nil {
				return
			}
		}
	})
}

// currentStateEvent describes the worker as it is right now, so a client
// that connects late does not wait for the next transition.
func (s *Server) currentStateEvent() events.SidecarStateChangedEvent {
	ev := events.SidecarStateChangedEvent{
		State:     "not_started",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if s.options.Sidecar != nil {
		info := s.options.Sidecar.Status()
		ev.State = string(info.State)
		ev.PID = info.PID
		ev.Error = info.LastError
	}
	return ev
}
