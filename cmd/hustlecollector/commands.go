package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"HustleCollector/internal/app"
	"HustleCollector/internal/config"
	"HustleCollector/internal/logging"
	"HustleCollector/internal/usecase"
)

var (
	collectTarget int
	collectRounds int
	migrateDown   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled collector",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Serve(ctx)
		})
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection run and print its report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			report, err := a.Collect(ctx, usecase.RunOptions{Target: collectTarget, MaxRounds: collectRounds})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			return err
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Derive missing source types from source URLs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			n, err := a.Backfill(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d cases\n", n)
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (or roll back one with --down)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return app.Migrate(cmd.Context(), cfg.Database, migrateDown, logger)
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectTarget, "target", 0, "stop once this many cases are stored (default from config)")
	collectCmd.Flags().IntVar(&collectRounds, "rounds", 0, "maximum rounds for this run (default from config)")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the last migration")
}

// withApp loads configuration, builds the application and runs fn until it
// returns or the process receives SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.Application) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}
