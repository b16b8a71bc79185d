package updater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tektite-io/voicebox/internal/version"
)

type fakeSource struct {
	mu         sync.Mutex
	latest     *release
	latestErr  error
	installErr error
	installed  []string
}

func (f *fakeSource) Latest(context.Context, string, bool) (*release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.latestErr
}

func (f *fakeSource) Install(_ context.Context, rel *release, exe string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = append(f.installed, rel.Version+"@"+exe)
	return nil
}

func newTestService(src *fakeSource) (*service, <-chan struct{}) {
	restarted := make(chan struct{}, 1)
	s := &service{
		source:       src,
		executable:   func() (string, error) { return "/opt/voicebox/voicebox", nil },
		restart:      func() { restarted <- struct{}{} },
		restartDelay: time.Millisecond,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		enabled:      src != nil,
		state:        StateIdle,
	}
	if src == nil {
		s.disabledReason = "read-only install"
	}
	return s, restarted
}

func TestDisabledService(t *testing.T) {
	s, _ := newTestService(nil)

	_, err := s.CheckForUpdate(context.Background())
	if ErrorCode(err) != ErrCodeDisabled {
		t.Errorf("CheckForUpdate() error = %v, want DISABLED", err)
	}
	if err := s.ApplyUpdate(context.Background()); ErrorCode(err) != ErrCodeDisabled {
		t.Errorf("ApplyUpdate() error = %v, want DISABLED", err)
	}

	status := s.GetStatus()
	if status.Enabled || status.DisabledReason != "read-only install" {
		t.Errorf("GetStatus() = %+v", status)
	}
	if status.CurrentVersion != version.Version {
		t.Errorf("CurrentVersion = %q, want %q", status.CurrentVersion, version.Version)
	}
}

func TestCheckForUpdate(t *testing.T) {
	tests := []struct {
		name      string
		src       *fakeSource
		wantCode  string
		wantState State
		wantAvail bool
	}{
		{
			name:      "newer release",
			src:       &fakeSource{latest: &release{Version: "1.2.0", Newer: true, Notes: "fixes"}},
			wantState: StateAvailable,
			wantAvail: true,
		},
		{
			name:      "up to date",
			src:       &fakeSource{latest: &release{Version: "1.1.0"}},
			wantState: StateIdle,
		},
		{
			name:      "no releases",
			src:       &fakeSource{},
			wantCode:  ErrCodeNotFound,
			wantState: StateError,
		},
		{
			name:      "source failure",
			src:       &fakeSource{latestErr: errors.New("rate limited")},
			wantCode:  ErrCodeCheckFailed,
			wantState: StateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(tt.src)
			info, err := s.CheckForUpdate(context.Background())
			if ErrorCode(err) != tt.wantCode {
				t.Fatalf("error = %v, want code %q", err, tt.wantCode)
			}
			if err == nil && info.UpdateAvailable != tt.wantAvail {
				t.Errorf("UpdateAvailable = %v, want %v", info.UpdateAvailable, tt.wantAvail)
			}
			status := s.GetStatus()
			if status.State != tt.wantState {
				t.Errorf("State = %s, want %s", status.State, tt.wantState)
			}
			if status.LastChecked == nil {
				t.Error("LastChecked not set")
			}
		})
	}
}

func TestApplyUpdateInstallsAndRestarts(t *testing.T) {
	src := &fakeSource{latest: &release{Version: "1.2.0", Newer: true}}
	s, restarted := newTestService(src)

	// Apply from idle checks first
	if err := s.ApplyUpdate(context.Background()); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("restart hook not called")
	}

	if len(src.installed) != 1 || src.installed[0] != "1.2.0@/opt/voicebox/voicebox" {
		t.Errorf("installed = %v", src.installed)
	}
	status := s.GetStatus()
	if status.State != StateRestarting || status.TargetVersion != "1.2.0" {
		t.Errorf("GetStatus() = %+v", status)
	}

	// A second apply while restarting is rejected
	if err := s.ApplyUpdate(context.Background()); ErrorCode(err) != ErrCodeInvalidState {
		t.Errorf("second ApplyUpdate() error = %v, want INVALID_STATE", err)
	}
}

func TestApplyUpdateNothingNewer(t *testing.T) {
	s, restarted := newTestService(&fakeSource{latest: &release{Version: "1.1.0"}})

	if err := s.ApplyUpdate(context.Background()); ErrorCode(err) != ErrCodeNoUpdate {
		t.Errorf("ApplyUpdate() error = %v, want NO_UPDATE", err)
	}
	select {
	case <-restarted:
		t.Error("restarted without an update")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestApplyUpdateInstallFailure(t *testing.T) {
	src := &fakeSource{
		latest:     &release{Version: "1.2.0", Newer: true},
		installErr: errors.New("checksum mismatch"),
	}
	s, _ := newTestService(src)

	err := s.ApplyUpdate(context.Background())
	if ErrorCode(err) != ErrCodeDownloadFailed {
		t.Fatalf("ApplyUpdate() error = %v, want DOWNLOAD_FAILED", err)
	}
	status := s.GetStatus()
	if status.State != StateError || status.Error != "checksum mismatch" {
		t.Errorf("GetStatus() = %+v", status)
	}

	// error allows a fresh check
	src.installErr = nil
	if _, err := s.CheckForUpdate(context.Background()); err != nil {
		t.Errorf("CheckForUpdate() after failure = %v", err)
	}
}

func TestCheckRejectedWhileDownloading(t *testing.T) {
	s, _ := newTestService(&fakeSource{})
	s.state = StateDownloading

	_, err := s.CheckForUpdate(context.Background())
	if ErrorCode(err) != ErrCodeInvalidState {
		t.Errorf("CheckForUpdate() error = %v, want INVALID_STATE", err)
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := newError(ErrCodeCheckFailed, "failed to check for updates", cause)

	if got, want := err.Error(), "CHECK_FAILED: failed to check for updates: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap does not expose the cause")
	}
	if ErrorCode(errors.New("plain")) != "" {
		t.Error("ErrorCode of a plain error should be empty")
	}
}
