// Package updater replaces the voicebox host binary with the latest GitHub
// release and asks the host to restart.
package updater

import (
	"context"
	"time"
)

// State of the updater.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateRestarting  State = "restarting"
	StateError       State = "error"
)

// Service checks for and installs host releases.
type Service interface {
	// CheckForUpdate asks the release source for the newest version.
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	// ApplyUpdate installs the newest release and schedules a restart.
	ApplyUpdate(ctx context.Context) error
	GetStatus() *Status
	// IsEnabled is false when the executable cannot be replaced in place.
	IsEnabled() bool
	DisabledReason() string
}

// UpdateInfo is the result of a check. The tags document the HTTP response.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version" example:"0.1.12" doc:"Currently installed version"`
	LatestVersion   string    `json:"latest_version" example:"0.1.13" doc:"Latest available version"`
	ReleaseNotes    string    `json:"release_notes,omitempty" doc:"Markdown release notes"`
	ReleaseURL      string    `json:"release_url,omitempty" doc:"URL to the release page"`
	PublishedAt     time.Time `json:"published_at" doc:"When the release was published"`
	AssetSize       int       `json:"asset_size,omitempty" doc:"Size of the release asset in bytes"`
	UpdateAvailable bool      `json:"update_available" doc:"Whether the latest version is newer than the running one"`
}

// Status is a snapshot of the updater.
type Status struct {
	State          State      `json:"state" enum:"idle,checking,available,downloading,restarting,error" doc:"Current update state"`
	CurrentVersion string     `json:"current_version" doc:"Running version"`
	TargetVersion  string     `json:"target_version,omitempty" doc:"Version being installed or available"`
	Error          string     `json:"error,omitempty" doc:"Last error, set in the error state"`
	LastChecked    *time.Time `json:"last_checked,omitempty" doc:"When the release source was last queried"`
	Enabled        bool       `json:"enabled" doc:"Whether the binary can update itself"`
	DisabledReason string     `json:"disabled_reason,omitempty" doc:"Why updates are disabled"`
}

// Options for NewService.
type Options struct {
	// Repository is the GitHub slug releases are fetched from.
	Repository string
	Prerelease bool
	// Restart runs after a successful install, RestartDelay after the
	// request returned. Nil sends SIGTERM to the own process.
	Restart      func()
	RestartDelay time.Duration
}
