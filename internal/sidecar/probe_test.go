package sidecar

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tektite-io/voicebox/internal/process"
)

type recordingHandler struct {
	mu    sync.Mutex
	lines []process.OutputEvent
}

func (r *recordingHandler) HandleLine(ev process.OutputEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, ev)
}

func (r *recordingHandler) Lines() []process.OutputEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.OutputEvent(nil), r.lines...)
}

func newTestProbe(handler process.OutputHandler, timeout time.Duration) *probe {
	p := newProbe(handler, testLogger())
	p.timeout = timeout
	p.interval = 20 * time.Millisecond
	return p
}

func spawnShell(t *testing.T, script string) *process.Handle {
	t.Helper()
	h, err := process.Spawn("sh", []string{"-c", script}, testLogger())
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Terminate(50 * time.Millisecond) })
	return h
}

func drain(events <-chan process.OutputEvent) {
	for range events {
	}
}

func TestProbeReadyOnStderrAfterDelay(t *testing.T) {
	events := make(chan process.OutputEvent, 8)
	go func() {
		events <- process.OutputEvent{Stream: process.StreamStdout, Line: "loading models"}
		time.Sleep(200 * time.Millisecond)
		events <- process.OutputEvent{Stream: process.StreamStderr, Line: "INFO:     Application startup complete."}
		events <- process.OutputEvent{Stream: process.StreamStderr, Line: "after ready"}
	}()

	handler := &recordingHandler{}
	result := newTestProbe(handler, 2*time.Second).wait(events)

	if result.Outcome != OutcomeReady {
		t.Fatalf("Outcome = %q, want ready", result.Outcome)
	}
	if result.Elapsed < 200*time.Millisecond {
		t.Errorf("Elapsed = %v, want >= 200ms", result.Elapsed)
	}
	if result.Line != "INFO:     Application startup complete." {
		t.Errorf("Line = %q", result.Line)
	}
	if result.Lines != 2 {
		t.Errorf("Lines = %d, want 2", result.Lines)
	}
	if got := handler.Lines(); len(got) != 2 {
		t.Errorf("handler got %d lines, want 2", len(got))
	}

	// The line after the marker stays in the channel for the relay
	select {
	case ev := <-events:
		if ev.Line != "after ready" {
			t.Errorf("next event = %q, want after ready", ev.Line)
		}
	case <-time.After(time.Second):
		t.Fatal("line after marker was not left in the channel")
	}
}

func TestProbeMarkers(t *testing.T) {
	tests := []struct {
		line  string
		ready bool
	}{
		{"INFO:     Uvicorn running on http://127.0.0.1:8000 (Press CTRL+C to quit)", true},
		{"INFO:     Application startup complete.", true},
		{"INFO:     Waiting for application startup.", false},
		{"uvicorn running", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p := newProbe(nil, testLogger())
			if got := p.matches(tt.line); got != tt.ready {
				t.Errorf("matches(%q) = %v, want %v", tt.line, got, tt.ready)
			}
		})
	}
}

func TestProbeTimesOut(t *testing.T) {
	events := make(chan process.OutputEvent)
	timeout := 200 * time.Millisecond

	result := newTestProbe(nil, timeout).wait(events)

	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome = %q, want timed_out", result.Outcome)
	}
	if result.Elapsed < timeout {
		t.Errorf("Elapsed = %v, want >= %v", result.Elapsed, timeout)
	}
	if result.Elapsed > timeout+200*time.Millisecond {
		t.Errorf("Elapsed = %v, want close to %v", result.Elapsed, timeout)
	}
}

func TestProbeTimesOutWithChattyWorker(t *testing.T) {
	events := make(chan process.OutputEvent)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case events <- process.OutputEvent{Stream: process.StreamStdout, Line: "still loading"}:
				time.Sleep(5 * time.Millisecond)
			case <-stop:
				return
			}
		}
	}()

	result := newTestProbe(nil, 150*time.Millisecond).wait(events)
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome = %q, want timed_out", result.Outcome)
	}
	if result.Lines == 0 {
		t.Error("expected lines to be consumed before the timeout")
	}
}

func TestProbeDetectsExitPromptly(t *testing.T) {
	events := make(chan process.OutputEvent, 1)
	events <- process.OutputEvent{Stream: process.StreamStderr, Line: "ModuleNotFoundError: No module named 'torch'"}
	close(events)

	handler := &recordingHandler{}
	result := newTestProbe(handler, 30*time.Second).wait(events)

	if result.Outcome != OutcomeExited {
		t.Fatalf("Outcome = %q, want exited", result.Outcome)
	}
	if result.Elapsed > time.Second {
		t.Errorf("Elapsed = %v, exit should be detected well before the deadline", result.Elapsed)
	}
	if got := handler.Lines(); len(got) != 1 {
		t.Errorf("handler got %d lines, want 1", len(got))
	}
}

func TestProbeWithSpawnedWorker(t *testing.T) {
	h := spawnShell(t, `echo starting; sleep 0.2; echo "INFO:     Uvicorn running on http://127.0.0.1:8000" >&2; sleep 10`)

	result := newTestProbe(nil, 5*time.Second).wait(h.Events())
	if result.Outcome != OutcomeReady {
		t.Fatalf("Outcome = %q, want ready", result.Outcome)
	}

	go drain(h.Events())
	if err := h.Terminate(time.Second); err != nil {
		t.Errorf("Terminate() error = %v", err)
	}
}

func TestProbeWithCrashingWorker(t *testing.T) {
	h := spawnShell(t, "echo boom >&2; exit 3")

	result := newTestProbe(nil, 5*time.Second).wait(h.Events())
	if result.Outcome != OutcomeExited {
		t.Fatalf("Outcome = %q, want exited", result.Outcome)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for process to exit")
	}
	if code := h.ExitCode(); code != 3 {
		t.Errorf("ExitCode() = %d, want 3", code)
	}
}

func TestProbeMarkerSplitAcrossChunks(t *testing.T) {
	padding := strings.Repeat("x", 100)
	events := make(chan process.OutputEvent, 4)
	events <- process.OutputEvent{Stream: process.StreamStderr, Line: padding + "INFO:     Uvicorn run", Partial: true}
	// a chunk of the other stream in between must not disturb the carry
	events <- process.OutputEvent{Stream: process.StreamStdout, Line: "unrelated"}
	events <- process.OutputEvent{Stream: process.StreamStderr, Line: "ning on http://127.0.0.1:8000"}

	result := newTestProbe(nil, time.Second).wait(events)
	if result.Outcome != OutcomeReady {
		t.Fatalf("Outcome = %q, want ready", result.Outcome)
	}
	if result.Lines != 3 {
		t.Errorf("Lines = %d, want 3", result.Lines)
	}
}

func TestProbeNoCarryAfterCompleteLine(t *testing.T) {
	events := make(chan process.OutputEvent, 2)
	events <- process.OutputEvent{Stream: process.StreamStdout, Line: "INFO:     Uvicorn run"}
	events <- process.OutputEvent{Stream: process.StreamStdout, Line: "ning on http://127.0.0.1:8000"}

	result := newTestProbe(nil, 100*time.Millisecond).wait(events)
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome = %q, want timed_out for two separate lines", result.Outcome)
	}
}

func TestProbeMarkerSplitByReader(t *testing.T) {
	// Put the split point of the 64 KiB line reader inside the marker.
	line := strings.Repeat("x", 64*1024-10) + "Application startup complete."
	h := spawnShell(t, "printf '%s\\n' '"+line+"' >&2; sleep 10")

	result := newTestProbe(nil, 5*time.Second).wait(h.Events())
	if result.Outcome != OutcomeReady {
		t.Fatalf("Outcome = %q, want ready", result.Outcome)
	}
	go drain(h.Events())
}
