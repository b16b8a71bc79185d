package events

// Event type constants for kelindar/event.
const (
	TypeWindowCloseRequested uint32 = iota + 1
	TypeWindowCloseAllowed
	TypeSidecarStateChanged
	TypeSidecarOutput
	TypeLogEntry
	TypeSettingsChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WindowCloseRequestedEvent asks the frontend to prepare for the window closing.
// The frontend answers with WindowCloseAllowedEvent carrying the same session ID.
type WindowCloseRequestedEvent struct {
	SessionID string `json:"session_id" example:"2f1c9a6e-7d7b-4c52-9a53-0b8f5d1e4c11" doc:"Close handshake session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Request timestamp"`
}

// Type returns the event type identifier for WindowCloseRequestedEvent.
func (e WindowCloseRequestedEvent) Type() uint32 { return TypeWindowCloseRequested }

// WindowCloseAllowedEvent acknowledges a close request.
// An empty SessionID acknowledges whichever session is in flight.
type WindowCloseAllowedEvent struct {
	SessionID string `json:"session_id,omitempty" doc:"Session being acknowledged, empty for the current one"`
	Source    string `json:"source,omitempty" example:"web" doc:"Frontend that sent the acknowledgement"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Acknowledgement timestamp"`
}

// Type returns the event type identifier for WindowCloseAllowedEvent.
func (e WindowCloseAllowedEvent) Type() uint32 { return TypeWindowCloseAllowed }

// SidecarStateChangedEvent is published on every worker lifecycle transition.
type SidecarStateChangedEvent struct {
	State         string `json:"state" example:"ready" doc:"New lifecycle state"`
	PreviousState string `json:"previous_state" example:"starting" doc:"Previous lifecycle state"`
	PID           int    `json:"pid,omitempty" example:"4242" doc:"Worker process ID"`
	Error         string `json:"error,omitempty" doc:"Failure description for failure states"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for SidecarStateChangedEvent.
func (e SidecarStateChangedEvent) Type() uint32 { return TypeSidecarStateChanged }

// SidecarOutputEvent carries one line of worker output.
type SidecarOutputEvent struct {
	Stream    string `json:"stream" example:"stderr" doc:"Output stream: stdout or stderr"`
	Line      string `json:"line" example:"INFO:     Application startup complete." doc:"Output line"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the line was read"`
}

// Type returns the event type identifier for SidecarOutputEvent.
func (e SidecarOutputEvent) Type() uint32 { return TypeSidecarOutput }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// SettingsChangedEvent is published when the frontend settings file changes.
type SettingsChangedEvent struct {
	ServerURL                string `json:"server_url" example:"http://localhost:8000" doc:"Worker URL the frontend connects to"`
	Mode                     string `json:"mode" example:"local" doc:"Connection mode" enum:"local,remote"`
	KeepServerRunningOnClose bool   `json:"keep_server_running_on_close" doc:"Leave the worker running after the window closes"`
	Timestamp                string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Change timestamp"`
}

// Type returns the event type identifier for SettingsChangedEvent.
func (e SettingsChangedEvent) Type() uint32 { return TypeSettingsChanged }
