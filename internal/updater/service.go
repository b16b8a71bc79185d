package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/version"
)

// DefaultRepository is the release source of the host binary.
const DefaultRepository = "tektite-io/voicebox"

// service checks GitHub for a newer host and installs it. Only one
// operation runs at a time; the state field is the lock holder's claim.
type service struct {
	source       releaseSource
	executable   func() (string, error)
	restart      func()
	restartDelay time.Duration
	logger       *slog.Logger

	enabled        bool
	disabledReason string

	mu          sync.Mutex
	state       State
	latest      *release
	lastChecked *time.Time
	lastError   error
}

// NewService creates the updater. A host that cannot replace its own
// binary (read-only install, package manager) gets a disabled service
// rather than an error.
func NewService(opts *Options) (Service, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	if opts.RestartDelay == 0 {
		opts.RestartDelay = 500 * time.Millisecond
	}

	s := &service{
		executable:   selfupdate.ExecutablePath,
		restart:      opts.Restart,
		restartDelay: opts.RestartDelay,
		logger:       logging.GetLogger("updater"),
		state:        StateIdle,
	}
	if s.restart == nil {
		s.restart = s.signalSelf
	}

	if reason := writableInstall(); reason != "" {
		s.logger.Warn("Self update disabled", "reason", reason)
		s.disabledReason = reason
		return s, nil
	}

	src, err := newGitHubSource(opts.Repository, opts.Prerelease)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub release source: %w", err)
	}
	s.source = src
	s.enabled = true
	s.logger.Debug("Self update enabled", "repository", opts.Repository)
	return s, nil
}

// writableInstall returns why the running binary cannot be replaced, or "".
func writableInstall() string {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Sprintf("cannot locate executable: %v", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Sprintf("cannot resolve executable: %v", err)
	}

	dir := filepath.Dir(exe)
	probe, err := os.CreateTemp(dir, ".voicebox.update.*")
	if err != nil {
		return fmt.Sprintf("no write permission to %s", dir)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return ""
}

func (s *service) IsEnabled() bool {
	return s.enabled
}

func (s *service) DisabledReason() string {
	return s.disabledReason
}

// CheckForUpdate asks the release source for the newest release. Nothing is
// downloaded; a newer release moves the service to available.
func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if err := s.claim(StateChecking, StateIdle, StateAvailable, StateError); err != nil {
		return nil, err
	}

	current := version.Version
	rel, err := s.source.Latest(ctx, current, version.IsDev())

	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	switch {
	case err != nil:
		s.fail(err)
		return nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	case rel == nil:
		s.fail(fmt.Errorf("no releases in repository"))
		return nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   rel.Version,
		PublishedAt:     rel.PublishedAt,
		UpdateAvailable: rel.Newer,
	}
	if !rel.Newer {
		s.settle(StateIdle, nil)
		s.logger.Debug("Host is up to date", "version", current)
		return info, nil
	}

	info.ReleaseNotes = rel.Notes
	info.ReleaseURL = rel.URL
	info.AssetSize = rel.AssetSize
	s.settle(StateAvailable, rel)
	s.logger.Info("Update available", "current", current, "latest", rel.Version)
	return info, nil
}

// ApplyUpdate installs the release found by the last check, checking first
// when none was found yet, and then restarts the host.
func (s *service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	if s.currentState() == StateIdle {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "no update available", nil)
		}
	}

	if err := s.claim(StateDownloading, StateAvailable); err != nil {
		return err
	}

	s.mu.Lock()
	rel := s.latest
	s.mu.Unlock()

	exe, err := s.executable()
	if err != nil {
		s.fail(err)
		return newError(ErrCodeDownloadFailed, "failed to locate executable", err)
	}
	if err := s.source.Install(ctx, rel, exe); err != nil {
		s.fail(err)
		return newError(ErrCodeDownloadFailed, "failed to install update", err)
	}

	s.settle(StateRestarting, rel)
	s.logger.Info("Update installed, restarting", "version", rel.Version, "path", exe)
	// Give the HTTP response time to go out.
	time.AfterFunc(s.restartDelay, s.restart)
	return nil
}

func (s *service) GetStatus() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.lastChecked,
		Enabled:        s.enabled,
		DisabledReason: s.disabledReason,
	}
	if s.latest != nil {
		status.TargetVersion = s.latest.Version
	}
	if s.lastError != nil {
		status.Error = s.lastError.Error()
	}
	return status
}

// claim moves to next if the current state is one of from.
func (s *service) claim(next State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.state) {
		return newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot move to %s from %s", next, s.state), nil)
	}
	s.logger.Debug("Update state changed", "from", s.state, "to", next)
	s.state = next
	s.lastError = nil
	return nil
}

// settle ends an operation in state with rel as the known latest release.
func (s *service) settle(state State, rel *release) {
	s.mu.Lock()
	s.state = state
	s.latest = rel
	s.mu.Unlock()
}

func (s *service) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastError = err
	s.mu.Unlock()
	s.logger.Warn("Update failed", "error", err)
}

func (s *service) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// signalSelf is the restart used without a host: SIGTERM lets the service
// manager start the new binary.
func (s *service) signalSelf() {
	s.logger.Info("Sending SIGTERM to trigger restart")
	proc, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = proc.Signal(syscall.SIGTERM)
	}
	if err != nil {
		s.logger.Error("Failed to send SIGTERM", "error", err)
	}
}
