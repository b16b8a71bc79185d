package sidecar

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DefaultBinary is the worker executable shipped next to the host.
const DefaultBinary = "voicebox-server"

// ServerURL is where the worker listens once ready.
const ServerURL = "http://localhost:8000"

// Status strings returned by Start.
const (
	AlreadyRunningMessage = "Server already running on " + ServerURL
	StartedMessage        = "Server started on " + ServerURL
)

// RemoteHost is the bind address passed in remote mode.
const RemoteHost = "0.0.0.0"

// DefaultDataDir is the worker data directory when none is configured:
// voicebox under the user config directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voicebox")
	}
	return filepath.Join(os.TempDir(), "voicebox")
}

// BuildArgs returns the worker arguments: --data-dir <dir> [--host 0.0.0.0].
func BuildArgs(dataDir string, remote bool) []string {
	args := []string{"--data-dir", dataDir}
	if remote {
		args = append(args, "--host", RemoteHost)
	}
	return args
}

// ResolveBinary finds the worker executable. Paths are used as given;
// bare names are looked up next to the running executable first and then
// on PATH.
func ResolveBinary(name string) (string, error) {
	if name == "" {
		return "", errors.New("worker binary not configured")
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	if filepath.Base(name) != name {
		return filepath.Abs(name)
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
			candidate += ".exe"
		}
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("worker binary %q not found: %w", name, err)
	}
	return path, nil
}
