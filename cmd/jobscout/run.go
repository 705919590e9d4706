package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amishk599/jobscout/internal/config"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/store"
	"github.com/spf13/cobra"
)

var searchFlags struct {
	keywords string
	location string
	window   string
	limit    int
	remote   bool
	partTime bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long:  "Runs discovery, extraction, enrichment and persistence once for the search given by flags, or for every configured search when --keywords is absent.",
	RunE:  runRun,
}

func init() {
	addSearchFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&searchFlags.keywords, "keywords", "", "search keywords")
	cmd.Flags().StringVar(&searchFlags.location, "location", "", "search location")
	cmd.Flags().StringVar(&searchFlags.window, "window", "24h", "posting age window: 1h, 24h, 7d, 30d or any")
	cmd.Flags().IntVar(&searchFlags.limit, "limit", 25, "stop discovery once this many postings were found")
	cmd.Flags().BoolVar(&searchFlags.remote, "remote", false, "only remote postings")
	cmd.Flags().BoolVar(&searchFlags.partTime, "part-time", false, "only part-time postings")
}

// resolveQueries returns the flag query when --keywords is set, otherwise the
// configured searches.
func resolveQueries(cfg *config.Config) ([]model.Query, error) {
	if strings.TrimSpace(searchFlags.keywords) != "" {
		w, err := model.ParseTimeWindow(searchFlags.window)
		if err != nil {
			return nil, err
		}
		if searchFlags.limit < 0 {
			return nil, fmt.Errorf("--limit must not be negative, got %d", searchFlags.limit)
		}
		return []model.Query{{
			Keywords: searchFlags.keywords,
			Location: searchFlags.location,
			Window:   w,
			Limit:    searchFlags.limit,
			Remote:   searchFlags.remote,
			PartTime: searchFlags.partTime,
		}}, nil
	}

	var qs []model.Query
	for _, s := range cfg.Searches {
		qs = append(qs, s.Query())
	}
	if len(qs) == 0 {
		return nil, errors.New("no search given: pass --keywords or add searches to the config")
	}
	return qs, nil
}

// openStore opens the SQLite database and logs a migration failure with its
// version before exiting.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *store.SQLiteStore {
	st, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		var mig *model.MigrationError
		if errors.As(err, &mig) {
			logger.Error("schema migration failed", "version", mig.Version, "path", cfg.Database.Path, "error", mig.Err)
		} else {
			logger.Error("failed to open store", "path", cfg.Database.Path, "error", err)
		}
		os.Exit(1)
	}
	return st
}

func runRun(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, logger)
	defer st.Close()

	a := buildApp(ctx, cfg, st, cfg.Database.LockPath, logger)
	defer a.Close()

	failed := 0
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		run, err := a.pipeline.Run(ctx, q)
		if err != nil {
			var busy *model.ConcurrentRunError
			if errors.As(err, &busy) {
				logger.Error("another run is in progress", "lock", busy.LockPath)
				os.Exit(1)
			}
			failed++
			continue
		}
		printRun(run)
	}

	stats := a.cache.Stats()
	logger.Info("enrichment cache",
		"lookups", stats.Lookups,
		"hits", stats.Hits,
		"suppressed", stats.Suppressed,
		"fetches", stats.Fetches,
		"failures", stats.Failures,
	)

	if failed > 0 {
		logger.Error("runs failed", "count", failed)
		os.Exit(1)
	}
	return nil
}

func printRun(run model.Run) {
	fmt.Printf("run #%d %s: discovered=%d new=%d updated=%d unchanged=%d failed=%d\n",
		run.ID, run.Status, run.Discovered, run.PersistedNew, run.PersistedUpdated, run.Unchanged, run.Failed)
	if run.ErrorSummary != nil {
		fmt.Printf("  note: %s\n", *run.ErrorSummary)
	}
}
