package main

import (
	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/logging"
)

// newRootCmd builds the command tree. Logging is initialized before any
// subcommand runs.
func newRootCmd() *cobra.Command {
	var logLevel, logFile string

	root := &cobra.Command{
		Use:   "drishti",
		Short: "Drishti",
		Long: `Drishti captures camera frames, runs hand landmark or object detection on
them and renders the detections over the live picture.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Options{Level: logLevel, File: logFile})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	root.AddCommand(newRunCmd(), newDevicesCmd())
	return root
}
