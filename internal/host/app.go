// Package host wires the worker coordinator, the close handshake and the
// HTTP API into the running application. The App is the window: closing it
// ends Run.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tektite-io/voicebox/internal/api"
	"github.com/tektite-io/voicebox/internal/events"
	"github.com/tektite-io/voicebox/internal/frontend"
	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/metrics"
	"github.com/tektite-io/voicebox/internal/process"
	"github.com/tektite-io/voicebox/internal/sidecar"
	"github.com/tektite-io/voicebox/internal/systemd"
	"github.com/tektite-io/voicebox/internal/updater"
	"github.com/tektite-io/voicebox/internal/window"
)

// Config configures an App.
type Config struct {
	Listen       string // API listen address
	DataDir      string
	ServerBinary string

	AutoStart       bool // start the worker when the host starts
	AutoStartRemote bool
	// BuiltinCloseHandler answers close requests in process: stop the
	// worker unless keep_server_running_on_close, then allow the close.
	BuiltinCloseHandler bool

	AuthUsername string
	AuthPassword string
	CORSOrigins  []string

	UpdatesEnabled   bool
	UpdateRepository string

	// ShutdownTimeout bounds draining HTTP requests after the window closed.
	ShutdownTimeout time.Duration
}

// App is the running host.
type App struct {
	cfg    Config
	logger *slog.Logger

	bus          *events.Bus
	coordinator  *sidecar.Coordinator
	handshake    *window.Handshake
	settings     *frontend.SettingsStore
	closeHandler *frontend.CloseHandler
	notifier     *systemd.Notifier
	server       *api.Server
	listener     net.Listener

	closed    chan struct{}
	closeOnce sync.Once
	restart   atomic.Bool
	unsubs    []func()
}

// New builds the application and binds the API listener.
func New(cfg Config) (*App, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 3 * time.Second
	}

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	logger := logging.GetLogger("main")
	bus := events.New()

	a := &App{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		listener: l,
		notifier: systemd.NewNotifier(logger),
		closed:   make(chan struct{}),
	}

	a.settings = frontend.NewSettingsStore(cfg.DataDir, bus, logging.GetLogger("frontend"))
	if err := a.settings.Load(); err != nil {
		logger.Warn("Using default settings", "error", err)
	}

	a.coordinator = sidecar.NewCoordinator(sidecar.Options{
		Binary: cfg.ServerBinary,
		Output: process.Handlers{
			process.NewLogSink(logging.GetLogger("server"), process.ParseUvicornLevel),
			sidecar.NewBusSink(bus),
			sidecar.MetricsSink,
		},
		OnStateChange: a.onStateChange,
		Logger:        logging.GetLogger("sidecar"),
		WorkerLogger:  logging.GetLogger("server"),
	})

	a.handshake = window.NewHandshake(window.NewBusFrontend(bus), logging.GetLogger("window"))

	if cfg.BuiltinCloseHandler {
		a.closeHandler = frontend.NewCloseHandler(bus, a.coordinator, a.settings, logging.GetLogger("frontend"))
		a.unsubs = append(a.unsubs, a.closeHandler.Attach())
	}

	var updateService updater.Service
	if cfg.UpdatesEnabled {
		svc, err := updater.NewService(&updater.Options{
			Repository: cfg.UpdateRepository,
			Restart:    a.requestRestart,
		})
		if err != nil {
			logger.Warn("Self update unavailable", "error", err)
		} else {
			updateService = svc
		}
	}

	a.server = api.NewServer(&api.Options{
		DataDir:           cfg.DataDir,
		Sidecar:           a.coordinator,
		Window:            a,
		Settings:          a.settings,
		EventBus:          bus,
		AuthUsername:      cfg.AuthUsername,
		AuthPassword:      cfg.AuthPassword,
		CORSOrigins:       cfg.CORSOrigins,
		UpdateService:     updateService,
		PrometheusHandler: metrics.Handler(),
	})

	// Log entries reach SSE clients through the bus. Publish never logs.
	logging.SetLogCallback(func(entry logging.LogEntry) {
		_ = bus.Publish(api.LogEntryEvent(entry))
	})

	return a, nil
}

// Addr returns the bound API address.
func (a *App) Addr() string {
	return a.listener.Addr().String()
}

// Coordinator returns the worker coordinator.
func (a *App) Coordinator() *sidecar.Coordinator {
	return a.coordinator
}

// Bus returns the event bus.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Run serves the API until the window is closed or ctx is cancelled, then
// shuts everything down. Cancelling ctx goes through the close handshake
// like any other close request.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(a.listener)
	}()

	if err := a.settings.Watch(); err != nil {
		a.logger.Warn("Settings hot reload disabled", "error", err)
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go a.notifier.Watchdog(watchdogCtx)
	a.notifier.Ready()

	if a.cfg.AutoStart {
		go a.autoStart()
	}

	var runErr error
	select {
	case <-a.closed:
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
		a.RequestClose()
		<-a.closed
	case err := <-serveErr:
		runErr = fmt.Errorf("api server: %w", err)
		a.logger.Error("API server failed", "error", err)
		a.closeWindow()
	}

	a.shutdown()
	return runErr
}

// RequestClose asks to close the window. The frontend gets a chance to
// clean up first; see window.Handshake.
func (a *App) RequestClose() *window.Session {
	return a.handshake.RequestClose(a)
}

// Close implements window.Window. It is called once the handshake resolves.
func (a *App) Close() error {
	a.closeWindow()
	return nil
}

// Closed is closed once the window has been closed.
func (a *App) Closed() <-chan struct{} {
	return a.closed
}

// RestartRequested reports whether the window closed for a self update.
func (a *App) RestartRequested() bool {
	return a.restart.Load()
}

func (a *App) closeWindow() {
	a.closeOnce.Do(func() {
		a.logger.Info("Window closed")
		close(a.closed)
	})
}

func (a *App) requestRestart() {
	a.restart.Store(true)
	a.RequestClose()
}

func (a *App) autoStart() {
	msg, err := a.coordinator.Start(a.cfg.DataDir, a.cfg.AutoStartRemote)
	if err != nil {
		a.logger.Error("Failed to auto-start server", "error", err)
		return
	}
	a.logger.Info(msg)
}

// shutdown runs after the window closed: API first so no new start can
// arrive, then the worker unless the user keeps it running.
func (a *App) shutdown() {
	a.notifier.Stopping()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("API server shutdown", "error", err)
	}

	if err := a.settings.Close(); err != nil {
		a.logger.Warn("Failed to stop settings watcher", "error", err)
	}

	if a.settings.KeepServerRunningOnClose() {
		a.logger.Info("Leaving server running", "pid", a.coordinator.Status().PID)
	} else if err := a.coordinator.Stop(); err != nil {
		a.logger.Error("Failed to stop server", "error", err)
	}

	for _, unsub := range a.unsubs {
		unsub()
	}
	logging.SetLogCallback(nil)
	a.bus.Close()
}

// onStateChange runs under the coordinator lock; it must stay non-blocking.
func (a *App) onStateChange(change sidecar.StateChange) {
	ev := events.SidecarStateChangedEvent{
		State:         string(change.To),
		PreviousState: string(change.From),
		PID:           change.Info.PID,
		Error:         change.Info.LastError,
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if err := a.bus.Publish(ev); err != nil && !errors.Is(err, events.ErrBusClosed) {
		a.logger.Warn("Failed to publish state change", "error", err)
	}
	a.notifier.Status("server " + string(change.To))
}

// Relaunch starts a fresh copy of the host with the same arguments. Under
// systemd the unit restarts the service instead, so nothing is started.
func Relaunch(logger *slog.Logger) error {
	if os.Getenv("INVOCATION_ID") != "" {
		logger.Info("Running under systemd, leaving restart to the service manager")
		return nil
	}
	return relaunch(logger)
}
