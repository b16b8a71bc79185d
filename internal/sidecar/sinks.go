package sidecar

import (
	"time"

	"github.com/tektite-io/voicebox/internal/events"
	"github.com/tektite-io/voicebox/internal/metrics"
	"github.com/tektite-io/voicebox/internal/process"
)

// BusSink publishes worker output as SidecarOutputEvent.
type BusSink struct {
	bus *events.Bus
}

// NewBusSink creates a sink publishing to bus.
func NewBusSink(bus *events.Bus) *BusSink {
	return &BusSink{bus: bus}
}

// HandleLine implements process.OutputHandler.
func (s *BusSink) HandleLine(ev process.OutputEvent) {
	// A closed bus only happens during shutdown; dropping output is fine then.
	_ = s.bus.Publish(events.SidecarOutputEvent{
		Stream:    string(ev.Stream),
		Line:      ev.Line,
		Timestamp: ev.Time.Format(time.RFC3339Nano),
	})
}

// MetricsSink counts worker output lines per stream.
var MetricsSink = process.OutputHandlerFunc(func(ev process.OutputEvent) {
	metrics.RecordOutputLine(string(ev.Stream))
})
