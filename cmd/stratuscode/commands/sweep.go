package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratuscode/stratuscode/internal/config"
	"github.com/stratuscode/stratuscode/internal/logging"
	"github.com/stratuscode/stratuscode/internal/store"
)

var sweepThreshold time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one recovery sweep and exit",
	Long: `Scan running sessions and force-reset any whose heartbeat is older
than the staleness threshold. Useful after an unclean shutdown, or from
cron when the server itself is not running.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepThreshold, "threshold", 0, "Staleness threshold (overrides config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	threshold := time.Duration(cfg.Sweeper.StaleThreshold)
	if sweepThreshold != 0 {
		threshold = sweepThreshold
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	sweeper := store.NewSweeper(st, 0, threshold)
	recovered, err := sweeper.SweepOnce(cmd.Context())
	if err != nil {
		return err
	}

	logging.Info().Int("recovered", recovered).Msg("sweep complete")
	return nil
}
