package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// eventBuffer is the OutputEvent channel capacity. It absorbs output written
// between the end of the probe and the start of the relay.
const eventBuffer = 256

// ErrNotExited is returned by Terminate when the worker survives the kill.
var ErrNotExited = errors.New("process did not exit after kill signal")

// Handle owns one spawned worker process.
type Handle struct {
	cmd         *exec.Cmd
	logger      *slog.Logger
	events      chan OutputEvent
	done        chan struct{}
	exitErr     error
	killTimeout time.Duration // wait after Kill() before giving up
}

// Spawn starts name with args and begins reading its output.
// The returned handle's Events channel yields every stdout and stderr line
// and is closed when both pipes reach EOF.
func Spawn(name string, args []string, logger *slog.Logger) (*Handle, error) {
	if name == "" {
		return nil, errors.New("empty command")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(name, args...)
	configureCommand(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		cmd:         cmd,
		logger:      logger.With("pid", cmd.Process.Pid),
		events:      make(chan OutputEvent, eventBuffer),
		done:        make(chan struct{}),
		killTimeout: 5 * time.Second,
	}
	h.logger.Info("Process started", "command", name, "args", args)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		h.stream(stdout, StreamStdout)
	}()
	go func() {
		defer readers.Done()
		h.stream(stderr, StreamStderr)
	}()

	// Wait closes the pipes, so it runs only after both readers hit EOF.
	go func() {
		readers.Wait()
		close(h.events)
		h.exitErr = cmd.Wait()
		h.logger.Info("Process exited", "exit_code", exitCodeFromError(h.exitErr))
		close(h.done)
	}()

	return h, nil
}

func (h *Handle) stream(r io.Reader, source Stream) {
	err := readLines(r, source, func(ev OutputEvent) {
		h.events <- ev
	})
	if err != nil && !errors.Is(err, os.ErrClosed) {
		h.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// Events returns the output channel. Exactly one goroutine may read it at a time.
func (h *Handle) Events() <-chan OutputEvent {
	return h.events
}

// Done is closed after the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// PID returns the operating system process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// ExitCode returns the exit code once Done is closed, -1 before that.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return exitCodeFromError(h.exitErr)
	default:
		return -1
	}
}

// Terminate asks the worker to exit and force kills it if it is still
// running after grace. It returns nil once the process is gone.
func (h *Handle) Terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.logger.Info("Sending stop signal to process")
	if err := interrupt(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("Failed to send stop signal", "error", err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}

	h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", grace)
	if err := kill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", h.PID(), err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(h.killTimeout):
		return ErrNotExited
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
