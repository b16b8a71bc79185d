package sidecar

import (
	"testing"
	"time"

	"github.com/tektite-io/voicebox/internal/events"
	"github.com/tektite-io/voicebox/internal/metrics"
	"github.com/tektite-io/voicebox/internal/process"
)

func TestBusSink(t *testing.T) {
	bus := events.New()
	received := make(chan events.SidecarOutputEvent, 1)
	unsub := bus.Subscribe(func(e events.SidecarOutputEvent) { received <- e })
	defer unsub()

	NewBusSink(bus).HandleLine(process.OutputEvent{
		Stream: process.StreamStderr,
		Line:   "INFO:     Application startup complete.",
		Time:   time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC),
	})

	select {
	case ev := <-received:
		if ev.Stream != "stderr" || ev.Line != "INFO:     Application startup complete." {
			t.Errorf("event = %+v", ev)
		}
		if ev.Timestamp != "2025-01-27T10:30:00Z" {
			t.Errorf("Timestamp = %q", ev.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("no SidecarOutputEvent published")
	}
}

func TestBusSinkClosedBus(_ *testing.T) {
	bus := events.New()
	bus.Close()
	NewBusSink(bus).HandleLine(process.OutputEvent{Line: "dropped"}) // should not panic
}

func TestMetricsSink(t *testing.T) {
	before := metrics.GetSidecarMetrics().OutputLines["stdout"]
	MetricsSink.HandleLine(process.OutputEvent{Stream: process.StreamStdout, Line: "x"})
	if got := metrics.GetSidecarMetrics().OutputLines["stdout"]; got != before+1 {
		t.Errorf("stdout lines = %v, want %v", got, before+1)
	}
}
