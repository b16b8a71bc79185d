package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/tektite-io/voicebox/cmd"
	"github.com/tektite-io/voicebox/internal/config"
	"github.com/tektite-io/voicebox/internal/host"
	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/sidecar"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Listen string `help:"Address the host API listens on" short:"l" default:"127.0.0.1:17493" toml:"server.listen" env:"SERVER_LISTEN"`

	// Worker settings
	DataDir         string `help:"Data directory passed to the worker (default: user config dir)" toml:"sidecar.data_dir" env:"SIDECAR_DATA_DIR"`
	ServerBinary    string `help:"Worker executable" default:"voicebox-server" toml:"sidecar.binary" env:"SIDECAR_BINARY"`
	AutoStart       bool   `help:"Start the worker when the host starts" default:"true" toml:"sidecar.auto_start" env:"SIDECAR_AUTO_START"`
	AutoStartRemote bool   `help:"Bind the auto-started worker to all interfaces" default:"false" toml:"sidecar.remote" env:"SIDECAR_REMOTE"`

	// Window settings
	BuiltinCloseHandler bool   `help:"Answer close requests in process" default:"true" toml:"window.builtin_close_handler" env:"WINDOW_BUILTIN_CLOSE_HANDLER"`
	ShutdownTimeout     string `help:"Time allowed for draining API requests on close" default:"3s" toml:"window.shutdown_timeout" env:"WINDOW_SHUTDOWN_TIMEOUT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`
	CorsOrigins  string `help:"Comma-separated allowed CORS origins (default: any)" default:"" toml:"server.cors_origins" env:"SERVER_CORS_ORIGINS"`

	// Update settings
	UpdateEnabled    bool   `help:"Enable self update" default:"true" toml:"update.enabled" env:"UPDATE_ENABLED"`
	UpdateRepository string `help:"GitHub repository for releases" default:"tektite-io/voicebox" toml:"update.repository" env:"UPDATE_REPOSITORY"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSidecar  string `help:"Coordinator logging level" default:"info" toml:"logging.sidecar" env:"LOGGING_SIDECAR"`
	LoggingServer   string `help:"Worker output logging level" default:"info" toml:"logging.server" env:"LOGGING_SERVER"`
	LoggingWindow   string `help:"Close handshake logging level" default:"info" toml:"logging.window" env:"LOGGING_WINDOW"`
	LoggingFrontend string `help:"Frontend logging level" default:"info" toml:"logging.frontend" env:"LOGGING_FRONTEND"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingUpdater  string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
}

func main() {
	var app *host.App
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(loggingConfig(opts))
		logger := logging.GetLogger("main")

		dataDir := opts.DataDir
		if dataDir == "" {
			dataDir = sidecar.DefaultDataDir()
		}

		// Subcommands share these options; the host itself is only built by the root command.
		shutdownTimeout, err := time.ParseDuration(opts.ShutdownTimeout)
		if err != nil {
			shutdownTimeout = 3 * time.Second
		}

		ctx, cancel := context.WithCancel(context.Background())
		runDone := make(chan struct{})

		hooks.OnStart(func() {
			defer close(runDone)

			var newErr error
			app, newErr = host.New(host.Config{
				Listen:              opts.Listen,
				DataDir:             dataDir,
				ServerBinary:        opts.ServerBinary,
				AutoStart:           opts.AutoStart,
				AutoStartRemote:     opts.AutoStartRemote,
				BuiltinCloseHandler: opts.BuiltinCloseHandler,
				AuthUsername:        opts.AuthUsername,
				AuthPassword:        opts.AuthPassword,
				CORSOrigins:         splitList(opts.CorsOrigins),
				UpdatesEnabled:      opts.UpdateEnabled,
				UpdateRepository:    opts.UpdateRepository,
				ShutdownTimeout:     shutdownTimeout,
			})
			if newErr != nil {
				logger.Error("Failed to create host", "error", newErr)
				os.Exit(1)
			}

			logger.Info("Starting host", "listen", app.Addr(), "data_dir", dataDir)
			if runErr := app.Run(ctx); runErr != nil {
				logger.Error("Host stopped with error", "error", runErr)
			}
		})

		hooks.OnStop(func() {
			// Signals go through the close handshake like a window close.
			cancel()
			<-runDone
		})
	})

	cli.Root().AddCommand(cmd.CreateSidecarCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()

	if app != nil && app.RestartRequested() {
		if err := host.Relaunch(logging.GetLogger("main")); err != nil {
			slog.Error("Failed to relaunch after update", "error", err)
			os.Exit(1)
		}
	}
}

func loggingConfig(opts *Options) logging.Config {
	cfg := config.LoadLoggingConfig(opts.Config)
	cfg.Level = opts.LoggingLevel
	cfg.Format = opts.LoggingFormat

	modules := map[string]string{
		"sidecar":  opts.LoggingSidecar,
		"server":   opts.LoggingServer,
		"window":   opts.LoggingWindow,
		"frontend": opts.LoggingFrontend,
		"api":      opts.LoggingAPI,
		"http":     opts.LoggingHTTP,
		"updater":  opts.LoggingUpdater,
	}
	// [logging.modules] may name modules that have no flag
	for module, level := range cfg.Modules {
		if _, ok := modules[module]; !ok {
			modules[module] = level
		}
	}
	cfg.Modules = modules
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
