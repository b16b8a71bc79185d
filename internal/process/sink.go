package process

import (
	"strings"

	"github.com/tektite-io/voicebox/internal/logging"
)

// OutputHandler receives output lines from the worker.
// Implementations forward output to logs, the event bus, metrics, etc.
type OutputHandler interface {
	HandleLine(ev OutputEvent)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(ev OutputEvent)

// HandleLine calls f(ev).
func (f OutputHandlerFunc) HandleLine(ev OutputEvent) {
	f(ev)
}

// Handlers fans a line out to every handler in order.
type Handlers []OutputHandler

// HandleLine implements OutputHandler.
func (hs Handlers) HandleLine(ev OutputEvent) {
	for _, h := range hs {
		if h != nil {
			h.HandleLine(ev)
		}
	}
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// uvicornLevels maps the worker's log prefixes to slog levels.
var uvicornLevels = []struct {
	prefix string
	level  string
}{
	{"CRITICAL:", "fatal"},
	{"ERROR:", "error"},
	{"WARNING:", "warning"},
	{"INFO:", "info"},
	{"DEBUG:", "debug"},
	{"TRACE:", "trace"},
}

// ParseUvicornLevel extracts the level from uvicorn style output
// ("INFO:     Started server process [1234]"). Lines without a known
// prefix are reported at info level unchanged.
func ParseUvicornLevel(line string) (level, msg string) {
	for _, l := range uvicornLevels {
		if rest, ok := strings.CutPrefix(line, l.prefix); ok {
			return l.level, strings.TrimSpace(rest)
		}
	}
	return "info", line
}

// LogSink writes worker output to a logger.
type LogSink struct {
	logger logging.Logger
	parser LogParser
}

// NewLogSink creates a sink logging to logger. A nil parser logs every line at info.
func NewLogSink(logger logging.Logger, parser LogParser) *LogSink {
	return &LogSink{logger: logger, parser: parser}
}

// HandleLine implements OutputHandler.
func (s *LogSink) HandleLine(ev OutputEvent) {
	level, msg := "info", ev.Line
	if s.parser != nil {
		level, msg = s.parser(ev.Line)
	}

	switch level {
	case "fatal", "error":
		s.logger.Error(msg, "stream", ev.Stream)
	case "warning":
		s.logger.Warn(msg, "stream", ev.Stream)
	case "debug", "trace":
		s.logger.Debug(msg, "stream", ev.Stream)
	default:
		s.logger.Info(msg, "stream", ev.Stream)
	}
}
