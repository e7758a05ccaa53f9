// Package commands provides the CLI commands for stratuscode.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stratuscode/stratuscode/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "stratuscode",
	Short: "stratuscode - agent session orchestration server",
	Long: `stratuscode runs the session and streaming core behind an AI coding
agent: turn preparation, transcript accumulation, cooperative
cancellation, and stale-session recovery, exposed over an HTTP API.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env next to the binary is a dev convenience, not required.
		_ = godotenv.Load()

		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("stratuscode %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
