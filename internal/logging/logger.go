package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	Modules    map[string]string `toml:"modules"`
	BufferSize int               `toml:"buffer_size"` // ring buffer entries served by /api/logs
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// registry holds the process wide logging state.
type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	modules     map[string]*moduleLogger
	buffer      *RingBuffer
	callback    LogCallback
}

var reg = &registry{modules: make(map[string]*moduleLogger)}

// levelFor returns the configured level of module. Callers hold reg.mu.
func (r *registry) levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if !r.initialized {
		return level
	}
	if l, ok := parseLevel(r.config.Level); ok {
		level = l
	}
	if l, ok := parseLevel(r.config.Modules[module]); ok {
		level = l
	}
	return level
}

func (r *registry) format() string {
	if r.initialized && r.config.Format != "" {
		return r.config.Format
	}
	return "text"
}

// sinks returns the buffer and callback for BufferHandler.
func (r *registry) sinks() (*RingBuffer, LogCallback) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffer, r.callback
}

// Initialize sets up the logging system. Loggers returned by GetLogger
// before the call keep working: their LevelVar is updated in place.
func Initialize(config Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.config = config
	reg.initialized = true

	size := config.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	reg.buffer = NewRingBuffer(size)

	for module, m := range reg.modules {
		m.level.Set(reg.levelFor(module))
		m.logger = newModuleLogger(module, reg.format(), m.level)
	}

	rootLevel := &slog.LevelVar{}
	rootLevel.Set(reg.levelFor(""))
	slog.SetDefault(slog.New(createHandler(reg.format(), rootLevel)))
}

// GetBuffer returns the log ring buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.buffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// The host uses it to publish LogEntryEvent on the event bus. The callback
// must not log through this package.
func SetLogCallback(callback LogCallback) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.callback = callback
}

// GetLogger returns the logger of module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	m, ok := reg.modules[module]
	reg.mu.RUnlock()
	if ok {
		return m.logger
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if m, ok := reg.modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	level.Set(reg.levelFor(module))
	m = &moduleLogger{
		logger: newModuleLogger(module, reg.format(), level),
		level:  level,
	}
	reg.modules[module] = m
	return m.logger
}

// SetModuleLevel changes the level of a module logger at runtime.
// It returns false when level is not a known level name.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.modules[module].level.Set(parsed)
	if reg.config.Modules == nil {
		reg.config.Modules = make(map[string]string)
	}
	reg.config.Modules[module] = level
	return true
}

func newModuleLogger(module, format string, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

// createHandler writes to stdout when something reads it, to the journal
// when journald runs, and always to the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	var stdout slog.Handler
	if isStdoutAvailable() {
		opts := &slog.HandlerOptions{Level: level}
		if format == "json" {
			stdout = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			stdout = slog.NewTextHandler(os.Stdout, opts)
		}
	}

	var journalHandler slog.Handler
	if IsJournalAvailable() {
		journalHandler = NewJournalHandler(level)
	}

	return NewMultiHandler(stdout, journalHandler, NewBufferHandler(level))
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or
// regular file. /dev/null is a device and does not count.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
