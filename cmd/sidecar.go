package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tektite-io/voicebox/internal/logging"
	"github.com/tektite-io/voicebox/internal/process"
	"github.com/tektite-io/voicebox/internal/sidecar"
)

// CreateSidecarCmd creates the sidecar command.
func CreateSidecarCmd() *cobra.Command {
	var dataDir string
	var binary string
	var remote bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Run the voicebox server in the foreground",
		Long: `Starts the voicebox server through the same coordinator the host uses, ` +
			`waits until it reports ready, prints its status and stops it on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("sidecar")

			if dataDir == "" {
				dataDir = sidecar.DefaultDataDir()
			}

			exited := make(chan struct{}, 1)
			coordinator := sidecar.NewCoordinator(sidecar.Options{
				Binary: binary,
				Output: process.NewLogSink(logging.GetLogger("server"), process.ParseUvicornLevel),
				OnStateChange: func(change sidecar.StateChange) {
					if change.To == process.StateExitedUnexpectedly {
						select {
						case exited <- struct{}{}:
						default:
						}
					}
				},
				Logger:       logger,
				WorkerLogger: logging.GetLogger("server"),
			})

			msg, err := coordinator.Start(dataDir, remote)
			if err != nil {
				logger.Error("Failed to start server", "error", err)
				os.Exit(1)
			}
			fmt.Println(msg)
			printStatus(coordinator.Status())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exitCode := 0
			select {
			case <-ctx.Done():
				logger.Info("Stopping server")
			case <-exited:
				logger.Error("Server exited unexpectedly", "error", coordinator.Status().LastError)
				exitCode = 1
			}

			if err := coordinator.Stop(); err != nil {
				logger.Error("Failed to stop server", "error", err)
				exitCode = 1
			}
			os.Exit(exitCode)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory passed to the server (default: user config dir)")
	cmd.Flags().StringVar(&binary, "binary", sidecar.DefaultBinary, "Server executable")
	cmd.Flags().BoolVar(&remote, "remote", false, "Listen on all interfaces")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

func printStatus(info sidecar.Info) {
	fmt.Printf("state:    %s\n", info.State)
	fmt.Printf("pid:      %d\n", info.PID)
	fmt.Printf("binary:   %s\n", info.Binary)
	fmt.Printf("data dir: %s\n", info.DataDir)
	fmt.Printf("url:      %s\n", sidecar.ServerURL)
	if info.Remote {
		fmt.Printf("remote:   listening on %s\n", sidecar.RemoteHost)
	}
}
