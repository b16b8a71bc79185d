// Package sidecar supervises the single worker process the host depends on.
//
// The Coordinator owns at most one process.Handle. Start spawns the worker,
// blocks until its output reports readiness (see probe.go) and then hands
// the output over to a relay;
// Stop terminates the worker. Both are serialized on one mutex so a start
// never races a stop into running two workers on the same port.
package sidecar

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tektite-io/voicebox/internal/metrics"
	"github.com/tektite-io/voicebox/internal/process"
)

// GracefulTimeout is how long Stop waits after the interrupt before killing.
const GracefulTimeout = 2 * time.Second

// Info is a point in time view of the coordinator.
type Info struct {
	State     process.State
	PID       int
	Binary    string
	DataDir   string
	Remote    bool
	StartedAt time.Time
	ReadyAt   time.Time
	LastError string
}

// StateChange describes one lifecycle transition.
type StateChange struct {
	From process.State
	To   process.State
	Info Info
}

// Options configures a Coordinator.
type Options struct {
	// Binary is the worker executable, resolved with ResolveBinary.
	Binary string
	// Output receives every worker line, during the probe and after it.
	Output process.OutputHandler
	// OnStateChange is called synchronously on every transition while the
	// coordinator lock is held. It must not call Start or Stop.
	OnStateChange func(StateChange)
	// Logger for lifecycle messages.
	Logger *slog.Logger
	// WorkerLogger is attached to the process handle.
	WorkerLogger *slog.Logger
}

// Coordinator launches and tracks exactly one worker process.
type Coordinator struct {
	mu     sync.Mutex
	handle *process.Handle
	info   Info
	status atomic.Pointer[Info]

	binary        string
	output        process.OutputHandler
	onStateChange func(StateChange)
	logger        *slog.Logger
	workerLogger  *slog.Logger

	readyTimeout    time.Duration
	pollInterval    time.Duration
	gracefulTimeout time.Duration
}

// NewCoordinator creates a coordinator in the not_started state.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WorkerLogger == nil {
		opts.WorkerLogger = opts.Logger
	}

	c := &Coordinator{
		info:            Info{State: process.StateNotStarted, Binary: opts.Binary},
		binary:          opts.Binary,
		output:          opts.Output,
		onStateChange:   opts.OnStateChange,
		logger:          opts.Logger,
		workerLogger:    opts.WorkerLogger,
		readyTimeout:    ReadyTimeout,
		pollInterval:    PollInterval,
		gracefulTimeout: GracefulTimeout,
	}
	c.publishStatus()
	return c
}

// Status returns the current lifecycle information. It never blocks on a
// running Start or Stop.
func (c *Coordinator) Status() Info {
	return *c.status.Load()
}

// Start launches the worker in dataDir and waits until it reports ready.
// If a worker is already starting or running it returns AlreadyRunningMessage
// without spawning anything.
func (c *Coordinator) Start(dataDir string, remote bool) (string, error) {
	c.mu.Lock()
	if c.handle != nil {
		c.logger.Info("Worker already running", "state", c.info.State, "pid", c.info.PID)
		c.mu.Unlock()
		return AlreadyRunningMessage, nil
	}

	h, err := c.spawnLocked(dataDir, remote)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	readiness := newProbe(c.output, c.logger)
	readiness.timeout = c.readyTimeout
	readiness.interval = c.pollInterval
	result := readiness.wait(h.Events())

	// The probe is done with the channel; from here the relay owns it.
	relayDone := process.Relay(h.Events(), c.output)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != h {
		c.logger.Info("Worker was stopped during startup")
		return "", newError(ErrCodeExitedUnexpectedly, "server stopped during startup", nil)
	}

	switch result.Outcome {
	case OutcomeReady:
		c.info.ReadyAt = time.Now()
		metrics.RecordStart(string(result.Outcome), result.Elapsed.Seconds())
		c.transitionLocked(process.StateReady, "")
		go c.watchExit(h, relayDone)
		return StartedMessage, nil

	case OutcomeTimedOut:
		metrics.RecordStart(string(result.Outcome), 0)
		c.discardLocked(h)
		msg := fmt.Sprintf("server did not become ready within %s", c.readyTimeout)
		c.transitionLocked(process.StateTimedOutStarting, msg)
		return "", newError(ErrCodeTimedOutStarting, msg, nil)

	default:
		metrics.RecordStart(string(result.Outcome), 0)
		c.discardLocked(h)
		msg := fmt.Sprintf("server exited before becoming ready (exit code %d)", h.ExitCode())
		c.transitionLocked(process.StateExitedUnexpectedly, msg)
		return "", newError(ErrCodeExitedUnexpectedly, msg, nil)
	}
}

// spawnLocked creates the data directory and starts the worker.
// On success the handle is stored and the state is starting.
func (c *Coordinator) spawnLocked(dataDir string, remote bool) (*process.Handle, error) {
	c.info.DataDir = dataDir
	c.info.Remote = remote
	c.info.PID = 0
	c.info.StartedAt = time.Time{}
	c.info.ReadyAt = time.Time{}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		metrics.RecordStart("directory_failed", 0)
		c.transitionLocked(process.StateFailedToStart, err.Error())
		return nil, newError(ErrCodeDirectoryCreationFailed, "failed to create data directory", err)
	}

	binary, err := ResolveBinary(c.binary)
	if err != nil {
		metrics.RecordStart("spawn_failed", 0)
		c.transitionLocked(process.StateFailedToStart, err.Error())
		return nil, newError(ErrCodeSpawnFailed, "failed to resolve server binary", err)
	}

	args := BuildArgs(dataDir, remote)
	c.logger.Info("Starting worker", "binary", binary, "args", args)
	h, err := process.Spawn(binary, args, c.workerLogger)
	if err != nil {
		metrics.RecordStart("spawn_failed", 0)
		c.transitionLocked(process.StateFailedToStart, err.Error())
		return nil, newError(ErrCodeSpawnFailed, "failed to spawn server", err)
	}

	c.handle = h
	c.info.PID = h.PID()
	c.info.StartedAt = time.Now()
	c.transitionLocked(process.StateStarting, "")
	return h, nil
}

// discardLocked terminates a worker that failed to start and forgets it.
func (c *Coordinator) discardLocked(h *process.Handle) {
	if err := h.Terminate(c.gracefulTimeout); err != nil {
		c.logger.Warn("Failed to terminate worker after failed start", "error", err)
	}
	c.handle = nil
}

// Stop terminates the worker. It is a no-op when no worker exists.
// The handle is dropped even when termination fails.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.handle
	if h == nil {
		c.logger.Debug("Stop requested with no worker running")
		return nil
	}

	c.transitionLocked(process.StateStopping, "")
	err := h.Terminate(c.gracefulTimeout)
	c.handle = nil

	if err != nil {
		c.transitionLocked(process.StateStopped, err.Error())
		return newError(ErrCodeTerminationFailed, "failed to stop server", err)
	}
	c.transitionLocked(process.StateStopped, "")
	return nil
}

// watchExit detects a worker that dies after becoming ready.
func (c *Coordinator) watchExit(h *process.Handle, relayDone <-chan struct{}) {
	<-relayDone
	<-h.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != h {
		return
	}
	c.handle = nil
	c.transitionLocked(process.StateExitedUnexpectedly,
		fmt.Sprintf("server exited unexpectedly (exit code %d)", h.ExitCode()))
}

// transitionLocked moves to state, records lastErr and notifies observers.
func (c *Coordinator) transitionLocked(state process.State, lastErr string) {
	from := c.info.State
	c.info.State = state
	if lastErr != "" || state == process.StateStarting {
		c.info.LastError = lastErr
	}
	if !state.HasProcess() {
		c.info.PID = 0
	}
	c.publishStatus()

	if lastErr != "" {
		c.logger.Warn("Worker state changed", "from", from, "to", state, "error", lastErr)
	} else {
		c.logger.Info("Worker state changed", "from", from, "to", state)
	}
	metrics.SetSidecarState(string(state))

	if c.onStateChange != nil {
		c.onStateChange(StateChange{From: from, To: state, Info: c.info})
	}
}

func (c *Coordinator) publishStatus() {
	snapshot := c.info
	c.status.Store(&snapshot)
}
