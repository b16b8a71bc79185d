package sidecar

import (
	"strings"
	"time"

	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/process"
)

// Readiness timing. Fixed; only tests in this package shorten them.
const (
	ReadyTimeout = 30 * time.Second
	PollInterval = 100 * time.Millisecond
)

// ReadyMarkers are the output fragments that signal the worker accepts requests.
var ReadyMarkers = []string{"Uvicorn running", "Application startup complete"}

// Outcome is the result of a readiness probe.
type Outcome string

const (
	OutcomeReady    Outcome = "ready"
	OutcomeExited   Outcome = "exited"
	OutcomeTimedOut Outcome = "timed_out"
)

type probeResult struct {
	Outcome Outcome
	Elapsed time.Duration
	Line    string // the line containing the marker, if ready
	Lines   int    // events consumed
}

// probe watches worker output for a readiness marker.
type probe struct {
	handler  process.OutputHandler
	logger   logging.Logger
	markers  []string
	timeout  time.Duration
	interval time.Duration

	// tail of the previous chunk per stream when a long line was split
	carry map[process.Stream]string
	keep  int
}

// newProbe creates a probe with the fixed deadline and markers. Every
// consumed line is forwarded to handler (may be nil).
func newProbe(handler process.OutputHandler, logger logging.Logger) *probe {
	keep := 0
	for _, m := range ReadyMarkers {
		keep = max(keep, len(m)-1)
	}
	return &probe{
		handler:  handler,
		logger:   logger,
		markers:  ReadyMarkers,
		timeout:  ReadyTimeout,
		interval: PollInterval,
		carry:    make(map[process.Stream]string),
		keep:     keep,
	}
}

// wait consumes events until a marker is seen, the channel closes or the
// deadline passes. The deadline is checked once per interval, so a timeout
// is reported at most one interval late.
func (p *probe) wait(events <-chan process.OutputEvent) probeResult {
	start := time.Now()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	var lines int
	for {
		if elapsed := time.Since(start); elapsed > p.timeout {
			p.logger.Warn("Worker did not become ready", "timeout", p.timeout, "lines", lines)
			return probeResult{Outcome: OutcomeTimedOut, Elapsed: elapsed, Lines: lines}
		}

		timer.Reset(p.interval)
		select {
		case ev, ok := <-events:
			if !ok {
				p.logger.Warn("Worker output ended before ready", "lines", lines)
				return probeResult{Outcome: OutcomeExited, Elapsed: time.Since(start), Lines: lines}
			}
			lines++
			if p.handler != nil {
				p.handler.HandleLine(ev)
			}
			if p.observe(ev) {
				elapsed := time.Since(start)
				p.logger.Info("Worker ready", "elapsed", elapsed, "stream", ev.Stream)
				return probeResult{Outcome: OutcomeReady, Elapsed: elapsed, Line: ev.Line, Lines: lines}
			}
		case <-timer.C:
		}
	}
}

// observe matches ev, joined to the tail of a preceding partial chunk of the
// same stream, so a marker split across chunks is still found.
func (p *probe) observe(ev process.OutputEvent) bool {
	text := p.carry[ev.Stream] + ev.Line
	delete(p.carry, ev.Stream)
	if p.matches(text) {
		return true
	}
	if ev.Partial && p.keep > 0 {
		if len(text) > p.keep {
			text = text[len(text)-p.keep:]
		}
		p.carry[ev.Stream] = text
	}
	return false
}

func (p *probe) matches(line string) bool {
	for _, m := range p.markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
