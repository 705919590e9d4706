package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobscout.
type Config struct {
	Database     DatabaseConfig
	Searches     []SearchConfig
	Fetch        FetchConfig
	RateLimit    RateLimitConfig
	Pipeline     PipelineConfig
	Enrichment   EnrichmentConfig
	Schedule     ScheduleConfig
	Cache        CacheConfig
	Notification NotificationConfig
}

// DatabaseConfig locates the SQLite file and its run lock.
type DatabaseConfig struct {
	Path     string
	LockPath string // defaults to Path + ".lock"
}

// SearchConfig is one configured discovery query.
type SearchConfig struct {
	Keywords string `yaml:"keywords"`
	Location string `yaml:"location"`
	Window   string `yaml:"window"` // 1h, 24h, 7d, 30d or any
	Limit    int    `yaml:"limit"`
	Remote   bool   `yaml:"remote"`
	PartTime bool   `yaml:"part_time"`
}

// Query converts the search entry into a model.Query. The window has already
// been checked by validate.
func (s SearchConfig) Query() model.Query {
	w, _ := model.ParseTimeWindow(s.Window)
	return model.Query{
		Keywords: s.Keywords,
		Location: s.Location,
		Window:   w,
		Limit:    s.Limit,
		Remote:   s.Remote,
		PartTime: s.PartTime,
	}
}

// DelayRange is the randomized pause inserted before a request.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// FetchConfig controls the HTTP client, pacing and retries.
type FetchConfig struct {
	Timeout      time.Duration
	ListingDelay DelayRange
	DetailDelay  DelayRange
	CompanyDelay DelayRange
	MaxRetries   int           // additional attempts after the first failure
	BaseBackoff  time.Duration // doubled on each retry
	MaxBackoff   time.Duration
	MaxPages     int // hard stop for discovery pagination
	UserAgents   []string
}

// RateLimitConfig bounds global request throughput.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxInFlight       int
}

// PipelineConfig controls per-run parallelism.
type PipelineConfig struct {
	Workers int
}

// EnrichmentConfig controls the company cache.
type EnrichmentConfig struct {
	Freshness time.Duration
}

// ScheduleConfig controls the `schedule` command.
type ScheduleConfig struct {
	Cron string // robfig/cron spec, e.g. "@every 24h" or "0 7 * * *"
}

// CacheConfig enables the optional Redis listing-page cache.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	defaultDBPath      = "jobscout.db"
	defaultSearchLimit = 25
	defaultCron        = "@every 24h"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database     rawDatabaseConfig  `yaml:"database"`
	Searches     []SearchConfig     `yaml:"searches"`
	Fetch        rawFetchConfig     `yaml:"fetch"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Enrichment   rawEnrichment      `yaml:"enrichment"`
	Schedule     rawSchedule        `yaml:"schedule"`
	Cache        rawCacheConfig     `yaml:"cache"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawDatabaseConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

type rawDelayRange struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

type rawFetchConfig struct {
	Timeout      string        `yaml:"timeout"`
	ListingDelay rawDelayRange `yaml:"listing_delay"`
	DetailDelay  rawDelayRange `yaml:"detail_delay"`
	CompanyDelay rawDelayRange `yaml:"company_delay"`
	MaxRetries   *int          `yaml:"max_retries"`
	BaseBackoff  string        `yaml:"base_backoff"`
	MaxBackoff   string        `yaml:"max_backoff"`
	MaxPages     int           `yaml:"max_pages"`
	UserAgents   []string      `yaml:"user_agents"`
}

type rawRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxInFlight       int     `yaml:"max_in_flight"`
}

type rawEnrichment struct {
	Freshness string `yaml:"freshness"`
}

type rawSchedule struct {
	Cron string `yaml:"cron"`
}

type rawCacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return cfg
}

// Parse builds a Config from YAML bytes, applying defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var err error
	cfg := &Config{
		Database: DatabaseConfig{Path: raw.Database.Path, LockPath: raw.Database.LockPath},
		Searches: raw.Searches,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: raw.RateLimit.RequestsPerSecond,
			Burst:             raw.RateLimit.Burst,
			MaxInFlight:       raw.RateLimit.MaxInFlight,
		},
		Pipeline:     raw.Pipeline,
		Schedule:     ScheduleConfig{Cron: raw.Schedule.Cron},
		Cache:        CacheConfig{RedisURL: raw.Cache.RedisURL},
		Notification: raw.Notification,
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDBPath
	}
	if cfg.Database.LockPath == "" {
		cfg.Database.LockPath = cfg.Database.Path + ".lock"
	}
	for i := range cfg.Searches {
		if cfg.Searches[i].Limit == 0 {
			cfg.Searches[i].Limit = defaultSearchLimit
		}
	}

	f := raw.Fetch
	if cfg.Fetch.Timeout, err = durationOr("fetch.timeout", f.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Fetch.ListingDelay, err = delayOr("fetch.listing_delay", f.ListingDelay, DelayRange{2 * time.Second, 5 * time.Second}); err != nil {
		return nil, err
	}
	if cfg.Fetch.DetailDelay, err = delayOr("fetch.detail_delay", f.DetailDelay, DelayRange{4 * time.Second, 10 * time.Second}); err != nil {
		return nil, err
	}
	if cfg.Fetch.CompanyDelay, err = delayOr("fetch.company_delay", f.CompanyDelay, DelayRange{4 * time.Second, 10 * time.Second}); err != nil {
		return nil, err
	}
	cfg.Fetch.MaxRetries = 3
	if f.MaxRetries != nil {
		cfg.Fetch.MaxRetries = *f.MaxRetries
	}
	if cfg.Fetch.BaseBackoff, err = durationOr("fetch.base_backoff", f.BaseBackoff, 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Fetch.MaxBackoff, err = durationOr("fetch.max_backoff", f.MaxBackoff, 60*time.Second); err != nil {
		return nil, err
	}
	cfg.Fetch.MaxPages = f.MaxPages
	if cfg.Fetch.MaxPages == 0 {
		cfg.Fetch.MaxPages = 40
	}
	cfg.Fetch.UserAgents = f.UserAgents

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 1
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.RateLimit.MaxInFlight == 0 {
		cfg.RateLimit.MaxInFlight = 2
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Enrichment.Freshness, err = durationOr("enrichment.freshness", raw.Enrichment.Freshness, 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = defaultCron
	}
	if cfg.Cache.TTL, err = durationOr("cache.ttl", raw.Cache.TTL, 6*time.Hour); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationOr(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func delayOr(field string, raw rawDelayRange, def DelayRange) (DelayRange, error) {
	lo, err := durationOr(field+".min", raw.Min, def.Min)
	if err != nil {
		return DelayRange{}, err
	}
	hi, err := durationOr(field+".max", raw.Max, def.Max)
	if err != nil {
		return DelayRange{}, err
	}
	return DelayRange{Min: lo, Max: hi}, nil
}

// parseDuration extends time.ParseDuration with a "d" (day) suffix.
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		d, err := time.ParseDuration(days + "h")
		if err != nil {
			return 0, err
		}
		return d * 24, nil
	}
	return time.ParseDuration(s)
}

func validate(cfg *Config) error {
	for i, s := range cfg.Searches {
		if strings.TrimSpace(s.Keywords) == "" {
			return fmt.Errorf("searches[%d].keywords is required", i)
		}
		if _, err := model.ParseTimeWindow(s.Window); err != nil {
			return fmt.Errorf("searches[%d].window: %w", i, err)
		}
		if s.Limit < 0 {
			return fmt.Errorf("searches[%d].limit must not be negative, got %d", i, s.Limit)
		}
	}

	for name, r := range map[string]DelayRange{
		"fetch.listing_delay": cfg.Fetch.ListingDelay,
		"fetch.detail_delay":  cfg.Fetch.DetailDelay,
		"fetch.company_delay": cfg.Fetch.CompanyDelay,
	} {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s must satisfy 0 <= min <= max, got %v..%v", name, r.Min, r.Max)
		}
	}
	if cfg.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.MaxBackoff < cfg.Fetch.BaseBackoff {
		return fmt.Errorf("fetch.max_backoff (%v) must be >= fetch.base_backoff (%v)", cfg.Fetch.MaxBackoff, cfg.Fetch.BaseBackoff)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive, got %v", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.MaxInFlight < 1 {
		return fmt.Errorf("rate_limit.max_in_flight must be at least 1, got %d", cfg.RateLimit.MaxInFlight)
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Enrichment.Freshness <= 0 {
		return fmt.Errorf("enrichment.freshness must be positive, got %v", cfg.Enrichment.Freshness)
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	}

	return nil
}
