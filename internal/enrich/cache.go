package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// ErrEmptyName is returned by Resolve for a name that normalizes to nothing.
var ErrEmptyName = errors.New("employer name is empty")

// ProfileFetcher downloads a company profile and returns the observed fields.
type ProfileFetcher interface {
	FetchCompany(ctx context.Context, name, profileURL string) (model.Employer, error)
}

// Stats counts what Resolve did since the cache was created.
type Stats struct {
	Lookups  int64 // Resolve calls
	Hits       int64 // fresh in the store, no fetch needed
	Suppressed int64 // stale but not fetched because of a recent failure
	Fetches    int64 // profile fetches attempted
	Failures   int64 // profile fetches that failed
}

// Cache resolves employers lookup-first: the store is consulted before the
// network, and a profile is fetched at most once per freshness window.
// All work on one employer is serialized by a per-name lock.
type Cache struct {
	store     model.EmployerStore
	fetcher   ProfileFetcher
	freshness time.Duration
	cooldown  time.Duration
	locks     *KeyedMutex
	now       func() time.Time
	logger    *slog.Logger

	failedMu sync.Mutex
	failed   map[string]time.Time

	lookups    atomic.Int64
	hits       atomic.Int64
	suppressed atomic.Int64
	fetches    atomic.Int64
	failures   atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithFailureCooldown sets how long a failed fetch suppresses further fetches
// for the same employer in this process. Zero disables suppression.
func WithFailureCooldown(d time.Duration) Option {
	return func(c *Cache) { c.cooldown = d }
}

// NewCache returns a cache over store. freshness is the window during which
// an enriched employer is served without a fetch.
func NewCache(store model.EmployerStore, fetcher ProfileFetcher, freshness time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		fetcher:   fetcher,
		freshness: freshness,
		cooldown:  time.Hour,
		locks:     NewKeyedMutex(),
		now:       time.Now,
		logger:    logger,
		failed:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the stored employer for name, enriching it first when it is
// missing, stale or never enriched. A failed fetch is recorded on the row and
// the row is returned as it was; only store failures produce an error.
// profileURL is an optional hint for where the profile lives.
func (c *Cache) Resolve(ctx context.Context, name, profileURL string) (model.Employer, error) {
	e, _, err := c.resolve(ctx, name, profileURL, false)
	return e, err
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Lookups:    c.lookups.Load(),
		Hits:       c.hits.Load(),
		Suppressed: c.suppressed.Load(),
		Fetches:    c.fetches.Load(),
		Failures:   c.failures.Load(),
	}
}

// Freshness returns the configured freshness window.
func (c *Cache) Freshness() time.Duration { return c.freshness }

// resolve reports fetched=true when a profile fetch succeeded and was merged.
func (c *Cache) resolve(ctx context.Context, name, profileURL string, force bool) (model.Employer, bool, error) {
	key := model.NormalizeEmployerName(name)
	if key == "" {
		return model.Employer{}, false, ErrEmptyName
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	c.lookups.Add(1)
	now := c.now().UTC()

	e, found, err := c.store.GetEmployer(ctx, key)
	if err != nil {
		return model.Employer{}, false, err
	}
	if found && !force && e.Fresh(now, c.freshness) {
		c.hits.Add(1)
		return e, false, nil
	}
	if !found {
		e, err = c.store.EnsureEmployer(ctx, key, strings.Join(strings.Fields(name), " "))
		if err != nil {
			return model.Employer{}, false, err
		}
	}
	if !force && c.coolingDown(key, now) {
		c.suppressed.Add(1)
		c.logger.Debug("skipping employer fetch after recent failure", "employer", key)
		return e, false, nil
	}

	if profileURL == "" && e.ProfileURL != nil {
		profileURL = *e.ProfileURL
	}
	displayName := e.DisplayName
	if displayName == "" {
		displayName = name
	}

	c.fetches.Add(1)
	observed, err := c.fetcher.FetchCompany(ctx, displayName, profileURL)
	if err != nil {
		c.failures.Add(1)
		c.markFailed(key, now)
		c.logger.Warn("employer enrichment failed", "employer", key, "error", err)
		updated, incErr := c.store.IncrementEnrichAttempts(ctx, key)
		if incErr != nil {
			return e, false, incErr
		}
		return updated, false, nil
	}

	merged := MergeEmployer(e, observed)
	merged.LastEnrichedAt = &now
	if err := c.store.SaveEmployer(ctx, merged); err != nil {
		return e, false, err
	}
	c.clearFailed(key)
	c.logger.Debug("employer enriched", "employer", key)

	// Another process may have saved fields since e was read.
	stored, found, err := c.store.GetEmployer(ctx, key)
	if err != nil {
		return merged, true, err
	}
	if !found {
		return merged, true, nil
	}
	return stored, true, nil
}

func (c *Cache) coolingDown(key string, now time.Time) bool {
	if c.cooldown <= 0 {
		return false
	}
	c.failedMu.Lock()
	defer c.failedMu.Unlock()
	at, ok := c.failed[key]
	return ok && now.Sub(at) < c.cooldown
}

func (c *Cache) markFailed(key string, now time.Time) {
	c.failedMu.Lock()
	c.failed[key] = now
	c.failedMu.Unlock()
}

func (c *Cache) clearFailed(key string) {
	c.failedMu.Lock()
	delete(c.failed, key)
	c.failedMu.Unlock()
}

// MergeEmployer overlays the fields observed by a fetch onto stored. An
// observed field that is empty never clears a stored one. The display name is
// only filled when stored has none. Name, timestamps and the attempt count
// are kept from stored.
func MergeEmployer(stored, observed model.Employer) model.Employer {
	out := stored
	if out.DisplayName == "" && strings.TrimSpace(observed.DisplayName) != "" {
		out.DisplayName = strings.TrimSpace(observed.DisplayName)
	}
	out.SizeText = mergeString(stored.SizeText, observed.SizeText)
	out.Industry = mergeString(stored.Industry, observed.Industry)
	out.ProfileURL = mergeString(stored.ProfileURL, observed.ProfileURL)
	if observed.Followers != nil {
		n := *observed.Followers
		out.Followers = &n
	}
	return out
}

func mergeString(stored, observed *string) *string {
	if observed == nil {
		return stored
	}
	v := strings.TrimSpace(*observed)
	if v == "" {
		return stored
	}
	return &v
}
