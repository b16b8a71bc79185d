// Package metrics provides Prometheus metrics for the worker lifecycle and
// the window close handshake.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sidecarStates lists every label value of the state gauge.
var sidecarStates = []string{
	"not_started",
	"starting",
	"ready",
	"stopping",
	"stopped",
	"failed_to_start",
	"timed_out_starting",
	"exited_unexpectedly",
}

var (
	sidecarState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voicebox",
		Subsystem: "sidecar",
		Name:      "state",
		Help:      "Current worker lifecycle state (1 for the active state)",
	}, []string{"state"})

	sidecarStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicebox",
		Subsystem: "sidecar",
		Name:      "starts_total",
		Help:      "Worker start attempts by outcome",
	}, []string{"outcome"})

	sidecarReadySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicebox",
		Subsystem: "sidecar",
		Name:      "ready_seconds",
		Help:      "Time from spawn until the worker reported ready",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30},
	})

	sidecarOutputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicebox",
		Subsystem: "sidecar",
		Name:      "output_lines_total",
		Help:      "Worker output lines by stream",
	}, []string{"stream"})

	// Local cache for the status API.
	sidecarCache   SidecarMetrics
	sidecarCacheMu sync.RWMutex
)

// SidecarMetrics holds current worker metric values.
type SidecarMetrics struct {
	State            string             `json:"state"`
	Starts           map[string]float64 `json:"starts"`
	OutputLines      map[string]float64 `json:"output_lines"`
	LastReadySeconds float64            `json:"last_ready_seconds"`
}

// SetSidecarState marks state as the active worker state.
func SetSidecarState(state string) {
	for _, s := range sidecarStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sidecarState.WithLabelValues(s).Set(v)
	}
	updateSidecarCache(func(m *SidecarMetrics) { m.State = state })
}

// RecordStart counts a start attempt. For outcome "ready" the readiness
// latency is observed as well.
func RecordStart(outcome string, readySeconds float64) {
	sidecarStarts.WithLabelValues(outcome).Inc()
	if outcome == "ready" {
		sidecarReadySeconds.Observe(readySeconds)
	}
	updateSidecarCache(func(m *SidecarMetrics) {
		if m.Starts == nil {
			m.Starts = make(map[string]float64)
		}
		m.Starts[outcome]++
		if outcome == "ready" {
			m.LastReadySeconds = readySeconds
		}
	})
}

// RecordOutputLine counts one worker output line.
func RecordOutputLine(stream string) {
	sidecarOutputLines.WithLabelValues(stream).Inc()
	updateSidecarCache(func(m *SidecarMetrics) {
		if m.OutputLines == nil {
			m.OutputLines = make(map[string]float64)
		}
		m.OutputLines[stream]++
	})
}

// GetSidecarMetrics returns a copy of the current worker metrics.
func GetSidecarMetrics() SidecarMetrics {
	sidecarCacheMu.RLock()
	defer sidecarCacheMu.RUnlock()
	dup := sidecarCache
	dup.Starts = copyCounts(sidecarCache.Starts)
	dup.OutputLines = copyCounts(sidecarCache.OutputLines)
	return dup
}

func updateSidecarCache(update func(*SidecarMetrics)) {
	sidecarCacheMu.Lock()
	defer sidecarCacheMu.Unlock()
	update(&sidecarCache)
}

func copyCounts(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
