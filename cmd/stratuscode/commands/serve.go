package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratuscode/stratuscode/internal/config"
	"github.com/stratuscode/stratuscode/internal/logging"
	"github.com/stratuscode/stratuscode/internal/server"
	"github.com/stratuscode/stratuscode/internal/store"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stratuscode server",
	Long: `Start the HTTP server over the session store, plus the background
recovery sweeper that force-resets sessions whose driver died mid-turn.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory for config discovery")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sweeper := store.NewSweeper(st,
		time.Duration(cfg.Sweeper.Interval),
		time.Duration(cfg.Sweeper.StaleThreshold))
	go sweeper.Run(ctx)

	srv := server.New(&server.Config{
		Port:        cfg.Server.Port,
		EnableCORS:  cfg.Server.EnableCORS,
		ReadTimeout: 30 * time.Second,
	}, st)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logging.Info().
		Str("version", Version).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Path).
		Msg("stratuscode started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logging.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
