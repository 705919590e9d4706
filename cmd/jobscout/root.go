package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/amishk599/jobscout/internal/adapter"
	"github.com/amishk599/jobscout/internal/cache"
	"github.com/amishk599/jobscout/internal/config"
	"github.com/amishk599/jobscout/internal/enrich"
	"github.com/amishk599/jobscout/internal/fetch"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/notifier"
	"github.com/amishk599/jobscout/internal/pipeline"
	"github.com/amishk599/jobscout/internal/ratelimit"
	"github.com/amishk599/jobscout/internal/retry"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobscout",
	Short: "LinkedIn job posting collector",
	Long:  "jobscout discovers public LinkedIn job postings for a search, extracts them, enriches their employers and stores everything in SQLite.",
	// Silence cobra's own error printing; commands log their failures.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSCOUT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSCOUT_CONFIG env var > "./config.yaml".
// A missing ./config.yaml falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("JOBSCOUT_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load("config.yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// appStore is what the CLI needs from a store: the pipeline surface plus the
// enrichment maintenance queries.
type appStore interface {
	model.PostingStore
	enrich.AdminStore
}

// app holds the components shared by the commands.
type app struct {
	linkedin *adapter.LinkedIn
	cache    *enrich.Cache
	enricher *enrich.Service
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// buildApp wires fetching, extraction, enrichment and the pipeline on top of
// st. lockPath may be empty to run without the advisory lock.
func buildApp(ctx context.Context, cfg *config.Config, st appStore, lockPath string, logger *slog.Logger) *app {
	a := &app{}
	httpClient := &http.Client{Timeout: cfg.Fetch.Timeout}

	pacer := ratelimit.NewPacer(map[model.PageKind]ratelimit.Range{
		model.PageListing: ratelimit.Range(cfg.Fetch.ListingDelay),
		model.PageDetail:  ratelimit.Range(cfg.Fetch.DetailDelay),
		model.PageCompany: ratelimit.Range(cfg.Fetch.CompanyDelay),
	}, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.MaxInFlight)
	policy := retry.NewPolicy(cfg.Fetch.MaxRetries, cfg.Fetch.BaseBackoff, cfg.Fetch.MaxBackoff, logger)

	opts := []fetch.Option{fetch.WithUserAgents(cfg.Fetch.UserAgents)}
	if cfg.Cache.RedisURL != "" {
		pc, err := cache.New(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.Warn("listing cache unavailable, fetching every page", "error", err)
		} else {
			logger.Info("listing cache enabled", "ttl", cfg.Cache.TTL.String())
			opts = append(opts, fetch.WithPageCache(pc))
			a.closers = append(a.closers, pc.Close)
		}
	}
	client := fetch.NewClient(httpClient, pacer, policy, logger, opts...)

	a.linkedin = adapter.NewLinkedIn(client, cfg.Fetch.MaxPages, logger)
	a.cache = enrich.NewCache(st, a.linkedin, cfg.Enrichment.Freshness, logger)
	a.enricher = enrich.NewService(st, a.cache, logger)

	pipeOpts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithNotifier(setupNotifier(cfg, &http.Client{Timeout: cfg.Fetch.Timeout}, logger)),
	}
	if lockPath != "" {
		pipeOpts = append(pipeOpts, pipeline.WithLockPath(lockPath))
	}
	discover := pipeline.DiscoverFunc(func(q model.Query) pipeline.Cursor { return a.linkedin.Discover(q) })
	a.pipeline = pipeline.New(discover, a.linkedin, a.cache, st, logger, pipeOpts...)
	return a
}
