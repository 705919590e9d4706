package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/amishk599/jobscout/internal/enrich"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/store"
	"github.com/spf13/cobra"
)

var (
	enrichLimit int
	enrichForce bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Employer enrichment subcommands",
}

var enrichStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show enrichment coverage",
	RunE:  runEnrichStats,
}

var enrichAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Enrich every stale or never-enriched employer",
	RunE:  runEnrichAll,
}

var enrichOneCmd = &cobra.Command{
	Use:   "one NAME",
	Short: "Enrich a single employer",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrichOne,
}

var enrichMissingCmd = &cobra.Command{
	Use:   "create-missing",
	Short: "Create employer rows for names referenced by postings",
	RunE:  runEnrichMissing,
}

func init() {
	enrichAllCmd.Flags().IntVar(&enrichLimit, "limit", 0, "maximum employers to enrich (0 = all)")
	enrichOneCmd.Flags().BoolVar(&enrichForce, "force", false, "fetch even when the stored profile is fresh")

	enrichCmd.AddCommand(enrichStatsCmd, enrichAllCmd, enrichOneCmd, enrichMissingCmd)
	rootCmd.AddCommand(enrichCmd)
}

// withEnricher loads config, opens the store and hands the wired app to fn.
// Commands that write employers pass exclusive and hold the run lock, so they
// never overlap a pipeline run or each other.
func withEnricher(exclusive bool, fn func(ctx context.Context, a *app) error) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exclusive {
		lock, err := store.AcquireRunLock(cfg.Database.LockPath)
		if err != nil {
			logger.Error("cannot enrich while another run is in progress", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("releasing run lock failed", "path", cfg.Database.LockPath, "error", err)
			}
		}()
	}

	st := openStore(ctx, cfg, logger)
	defer st.Close()

	a := buildApp(ctx, cfg, st, "", logger)
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			return nil
		}
		logger.Error("enrichment failed", "error", err)
		os.Exit(1)
	}
	return nil
}

func runEnrichStats(cmd *cobra.Command, args []string) error {
	return withEnricher(false, func(ctx context.Context, a *app) error {
		s, err := a.enricher.Statistics(ctx)
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Enrichment coverage"))
		fmt.Println(renderTable([]string{"Metric", "Count"}, statsRows(s), nil))
		fmt.Println(hintStyle.Render(fmt.Sprintf("freshness window: %s", a.cache.Freshness())))
		return nil
	})
}

func statsRows(s model.EnrichmentStats) [][]string {
	pct := "-"
	if s.Employers > 0 {
		pct = fmt.Sprintf("%.0f%%", 100*float64(s.Enriched)/float64(s.Employers))
	}
	return [][]string{
		{"Employers", strconv.Itoa(s.Employers)},
		{"Enriched (fresh)", strconv.Itoa(s.Enriched) + " (" + pct + ")"},
		{"Stale", strconv.Itoa(s.Stale)},
		{"Never enriched", strconv.Itoa(s.NeverEnriched)},
		{"With failed attempts", strconv.Itoa(s.WithFailures)},
		{"Postings", strconv.Itoa(s.Postings)},
		{"Missing employer rows", strconv.Itoa(s.MissingEmployer)},
	}
}

func runEnrichAll(cmd *cobra.Command, args []string) error {
	return withEnricher(true, func(ctx context.Context, a *app) error {
		sum, err := a.enricher.EnrichStale(ctx, enrichLimit)
		printSummary(sum)
		return err
	})
}

func printSummary(sum enrich.Summary) {
	fmt.Printf("attempted=%d enriched=%d failed=%d\n", sum.Attempted, sum.Enriched, sum.Failed)
}

func runEnrichOne(cmd *cobra.Command, args []string) error {
	return withEnricher(true, func(ctx context.Context, a *app) error {
		e, fetched, err := a.enricher.EnrichOne(ctx, args[0], enrichForce)
		if err != nil {
			return err
		}
		fmt.Print(describeEmployer(e, fetched))
		return nil
	})
}

func describeEmployer(e model.Employer, fetched bool) string {
	val := func(s *string) string {
		if s == nil {
			return "-"
		}
		return *s
	}
	followers := "-"
	if e.Followers != nil {
		followers = strconv.FormatInt(*e.Followers, 10)
	}
	enriched := "never"
	if e.LastEnrichedAt != nil {
		enriched = e.LastEnrichedAt.Local().Format("2006-01-02 15:04")
	}
	source := "cached"
	if fetched {
		source = "fetched"
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(e.DisplayName))
	fmt.Fprintf(&b, "size:       %s\n", val(e.SizeText))
	fmt.Fprintf(&b, "followers:  %s\n", followers)
	fmt.Fprintf(&b, "industry:   %s\n", val(e.Industry))
	fmt.Fprintf(&b, "profile:    %s\n", val(e.ProfileURL))
	fmt.Fprintf(&b, "enriched:   %s (%s, %d failed attempts)\n", enriched, source, e.EnrichAttempts)
	return b.String()
}

func runEnrichMissing(cmd *cobra.Command, args []string) error {
	return withEnricher(true, func(ctx context.Context, a *app) error {
		n, err := a.enricher.CreateMissing(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("created %d employer rows\n", n)
		return nil
	})
}
