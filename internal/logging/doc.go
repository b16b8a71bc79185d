// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Keeps the most recent entries in a ring buffer for /api/logs and the
//     log-entry SSE stream
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"server": "warn",    // Worker output
//			"window": "debug",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("sidecar")
//	logger.Info("Starting worker", "binary", path)
//
// Loggers handed out before Initialize keep working: their level is a
// slog.LevelVar that Initialize updates in place.
//
// # Modules
//
//	main     - process startup and shutdown
//	sidecar  - worker lifecycle
//	server   - worker stdout/stderr, level taken from the uvicorn prefix
//	window   - close handshake
//	frontend - built-in close handler and settings
//	api      - HTTP API
//	http     - request log
//	updater  - self update
//
// # Viewing Logs
//
// When journald is available:
//
//	journalctl -t voicebox -f
//	journalctl -t voicebox MODULE=server
//	journalctl -t voicebox -p err
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	buffer_size = 1000
//
//	[logging.modules]
//	server = "warn"
package logging
