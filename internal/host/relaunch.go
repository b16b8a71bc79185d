package host

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

func relaunch(logger *slog.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("relaunch %s: %w", exe, err)
	}
	logger.Info("Relaunched host", "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}
