package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobscout/internal/store"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run once against an in-memory store, print postings, exit",
	Long:  "Dry run: executes the full pipeline for the first search against an in-memory store and prints what would be stored. Nothing is written to the database.",
	RunE:  runCheck,
}

func init() {
	addSearchFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	logger.Info("check mode: nothing will be persisted")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore()
	a := buildApp(ctx, cfg, mem, "", logger)
	defer a.Close()

	run, err := a.pipeline.Run(ctx, queries[0])
	if err != nil {
		logger.Error("check failed", "error", err)
		os.Exit(1)
	}

	for _, p := range mem.Postings() {
		location := "-"
		if p.Location != nil {
			location = *p.Location
		}
		fmt.Printf("%-12s %-40.40s %-25.25s %-25.25s %s\n", p.ExternalID, p.Title, p.EmployerName, location, p.WorkType)
	}
	printRun(run)
	logger.Info("check complete")
	return nil
}
