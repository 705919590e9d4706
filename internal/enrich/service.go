package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// AdminStore is the store surface of the maintenance operations.
type AdminStore interface {
	model.EmployerStore
	StaleEmployers(ctx context.Context, cutoff time.Time, limit int) ([]model.Employer, error)
	MissingEmployers(ctx context.Context) ([]model.EmployerRef, error)
	EnrichmentStats(ctx context.Context, cutoff time.Time) (model.EnrichmentStats, error)
}

// Summary reports the outcome of a batch enrichment.
type Summary struct {
	Attempted int
	Enriched  int
	Failed    int
}

// Service runs the enrichment maintenance operations outside a pipeline run.
// Each operation is independent and safe to repeat.
type Service struct {
	store  AdminStore
	cache  *Cache
	logger *slog.Logger
}

func NewService(store AdminStore, cache *Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// Statistics summarizes enrichment coverage against the cache's freshness window.
func (s *Service) Statistics(ctx context.Context) (model.EnrichmentStats, error) {
	cutoff := s.cache.now().UTC().Add(-s.cache.freshness)
	st, err := s.store.EnrichmentStats(ctx, cutoff)
	if err != nil {
		return model.EnrichmentStats{}, fmt.Errorf("computing enrichment statistics: %w", err)
	}
	return st, nil
}

// EnrichStale fetches profiles for employers that were never enriched or
// whose data is older than the freshness window. limit <= 0 means all.
// Cancellation is checked between employers.
func (s *Service) EnrichStale(ctx context.Context, limit int) (Summary, error) {
	cutoff := s.cache.now().UTC().Add(-s.cache.freshness)
	stale, err := s.store.StaleEmployers(ctx, cutoff, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("listing stale employers: %w", err)
	}

	var sum Summary
	for _, e := range stale {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Attempted++
		_, ok, err := s.cache.resolve(ctx, e.Name, "", false)
		if err != nil {
			return sum, fmt.Errorf("enriching %q: %w", e.Name, err)
		}
		if ok {
			sum.Enriched++
		} else {
			sum.Failed++
		}
	}
	s.logger.Info("stale employers processed",
		"attempted", sum.Attempted,
		"enriched", sum.Enriched,
		"failed", sum.Failed,
	)
	return sum, nil
}

// EnrichOne resolves a single employer. With force the profile is fetched
// even when the stored data is fresh.
func (s *Service) EnrichOne(ctx context.Context, name string, force bool) (model.Employer, bool, error) {
	e, ok, err := s.cache.resolve(ctx, name, "", force)
	if err != nil {
		return model.Employer{}, false, fmt.Errorf("enriching %q: %w", name, err)
	}
	return e, ok, nil
}

// CreateMissing inserts employer rows for names that postings reference but
// the employers table lacks. It returns how many rows were created.
func (s *Service) CreateMissing(ctx context.Context) (int, error) {
	refs, err := s.store.MissingEmployers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing missing employers: %w", err)
	}
	created := 0
	for _, ref := range refs {
		if ref.Key == "" {
			continue
		}
		if _, found, err := s.store.GetEmployer(ctx, ref.Key); err != nil {
			return created, err
		} else if found {
			continue
		}
		if _, err := s.store.EnsureEmployer(ctx, ref.Key, ref.DisplayName); err != nil {
			return created, fmt.Errorf("creating employer %q: %w", ref.Key, err)
		}
		created++
	}
	if created > 0 {
		s.logger.Info("created missing employers", "count", created)
	}
	return created, nil
}
