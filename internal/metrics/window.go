package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	closeHandshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicebox",
		Subsystem: "window",
		Name:      "close_handshakes_total",
		Help:      "Window close handshakes by outcome",
	}, []string{"outcome"})

	closeHandshakeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicebox",
		Subsystem: "window",
		Name:      "close_handshake_seconds",
		Help:      "Time from close request until the window closed",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 6},
	})
)

// RecordCloseHandshake records a resolved close handshake.
func RecordCloseHandshake(outcome string, seconds float64) {
	closeHandshakes.WithLabelValues(outcome).Inc()
	closeHandshakeSeconds.Observe(seconds)
}
