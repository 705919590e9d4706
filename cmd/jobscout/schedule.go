package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobscout/internal/scheduler"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the configured searches on a cron schedule",
	Long:  "Runs every configured search once, then again on each tick of schedule.cron; blocks until SIGINT/SIGTERM.",
	RunE:  runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	queries, err := resolveQueries(cfg)
	if err != nil {
		logger.Error("invalid search", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"schedule", cfg.Schedule.Cron,
		"searches", len(queries),
		"workers", cfg.Pipeline.Workers,
		"freshness", cfg.Enrichment.Freshness.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, logger)
	defer st.Close()

	a := buildApp(ctx, cfg, st, cfg.Database.LockPath, logger)
	defer a.Close()

	sched, err := scheduler.NewScheduler(a.pipeline, queries, cfg.Schedule.Cron, logger)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
