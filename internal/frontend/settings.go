package frontend

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tektite-io/voicebox/internal/config"
	"github.com/tektite-io/voicebox/internal/events"
)

// SettingsFile is the settings file name inside the data directory.
const SettingsFile = "settings.toml"

// Connection modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// ErrInvalidSettings is returned by Update for settings that fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the persisted frontend preferences.
type Settings struct {
	ServerURL                string `toml:"server_url" json:"server_url"`
	Mode                     string `toml:"mode" json:"mode"`
	KeepServerRunningOnClose bool   `toml:"keep_server_running_on_close" json:"keep_server_running_on_close"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		ServerURL: "http://localhost:8000",
		Mode:      ModeLocal,
	}
}

// Validate checks field values.
func (s Settings) Validate() error {
	if s.ServerURL == "" {
		return fmt.Errorf("%w: server_url is required", ErrInvalidSettings)
	}
	if s.Mode != ModeLocal && s.Mode != ModeRemote {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", ErrInvalidSettings, ModeLocal, ModeRemote, s.Mode)
	}
	return nil
}

// LoadSettings reads path, filling missing keys from DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if _, err := config.ReadTOML(path, &s); err != nil {
		return DefaultSettings(), err
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// SettingsStore holds the current settings, persists updates and follows
// external edits of the file.
type SettingsStore struct {
	path   string
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings

	watcher *config.Watcher[Settings]
}

// NewSettingsStore creates a store for dataDir/settings.toml. Call Load
// before use. bus may be nil.
func NewSettingsStore(dataDir string, bus *events.Bus, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		path:    filepath.Join(dataDir, SettingsFile),
		bus:     bus,
		logger:  logger,
		current: DefaultSettings(),
	}
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads the settings file. A missing file leaves the defaults in place;
// an unreadable one is logged and also leaves the defaults.
func (s *SettingsStore) Load() error {
	loaded, err := LoadSettings(s.path)
	if err != nil {
		s.logger.Warn("Failed to load settings, using defaults", "path", s.path, "error", err)
		return err
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	s.logger.Debug("Settings loaded", "path", s.path, "keep_server_running_on_close", loaded.KeepServerRunningOnClose)
	return nil
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// KeepServerRunningOnClose reports whether closing the window leaves the
// worker running.
func (s *SettingsStore) KeepServerRunningOnClose() bool {
	return s.Get().KeepServerRunningOnClose
}

// Update validates, persists and publishes next.
func (s *SettingsStore) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := config.WriteTOML(s.path, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save settings: %w", err)
	}
	s.current = next
	s.mu.Unlock()

	s.logger.Info("Settings updated", "keep_server_running_on_close", next.KeepServerRunningOnClose, "mode", next.Mode)
	s.publish(next)
	return nil
}

// Watch starts following external edits of the settings file.
func (s *SettingsStore) Watch() error {
	w := config.NewConfigWatcher(s.path, LoadSettings, s.logger,
		config.WithErrorHandler[Settings](func(err error) {
			s.logger.Warn("Ignoring invalid settings file", "path", s.path, "error", err)
		}),
	)
	w.OnReload(s.reload)
	if err := w.Start(); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Close stops the file watcher.
func (s *SettingsStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop()
}

func (s *SettingsStore) reload(next Settings) {
	s.mu.Lock()
	if next == s.current {
		s.mu.Unlock()
		return
	}
	s.current = next
	s.mu.Unlock()

	s.logger.Info("Settings reloaded from disk", "keep_server_running_on_close", next.KeepServerRunningOnClose)
	s.publish(next)
}

func (s *SettingsStore) publish(next Settings) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(events.SettingsChangedEvent{
		ServerURL:                next.ServerURL,
		Mode:                     next.Mode,
		KeepServerRunningOnClose: next.KeepServerRunningOnClose,
		Timestamp:                time.Now().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Debug("Settings change not published", "error", err)
	}
}
