package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/jobs.db
searches:
  - keywords: data scientist
    location: Austin
    window: 24h
    limit: 5
  - keywords: go developer
    remote: true
fetch:
  detail_delay:
    min: 3s
    max: 8s
  max_retries: 5
pipeline:
  workers: 8
enrichment:
  freshness: 14d
schedule:
  cron: "0 7 * * *"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/jobs.db" || cfg.Database.LockPath != "/tmp/jobs.db.lock" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if len(cfg.Searches) != 2 {
		t.Fatalf("Searches = %+v", cfg.Searches)
	}
	q := cfg.Searches[0].Query()
	if q.Keywords != "data scientist" || q.Window != model.WindowDay || q.Limit != 5 {
		t.Errorf("first query = %+v", q)
	}
	if cfg.Searches[1].Limit != defaultSearchLimit {
		t.Errorf("second search limit = %d, want default %d", cfg.Searches[1].Limit, defaultSearchLimit)
	}
	if cfg.Searches[1].Query().Window != model.WindowAny {
		t.Errorf("empty window should map to any")
	}
	if cfg.Fetch.DetailDelay != (DelayRange{3 * time.Second, 8 * time.Second}) {
		t.Errorf("DetailDelay = %+v", cfg.Fetch.DetailDelay)
	}
	if cfg.Fetch.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Fetch.MaxRetries)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Enrichment.Freshness != 14*24*time.Hour {
		t.Errorf("Freshness = %v, want 336h", cfg.Enrichment.Freshness)
	}
	if cfg.Schedule.Cron != "0 7 * * *" {
		t.Errorf("Cron = %q", cfg.Schedule.Cron)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path != defaultDBPath {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Fetch.ListingDelay.Min != 2*time.Second {
		t.Errorf("listing delay min = %v, want 2s", cfg.Fetch.ListingDelay.Min)
	}
	if cfg.Fetch.DetailDelay.Max != 10*time.Second {
		t.Errorf("detail delay max = %v, want 10s", cfg.Fetch.DetailDelay.Max)
	}
	if cfg.Fetch.DetailDelay.Min <= cfg.Fetch.ListingDelay.Min {
		t.Error("detail pages should wait longer than listing pages")
	}
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Fetch.MaxRetries)
	}
	if cfg.Pipeline.Workers != 4 || cfg.RateLimit.MaxInFlight != 2 {
		t.Errorf("workers/in-flight = %d/%d, want 4/2", cfg.Pipeline.Workers, cfg.RateLimit.MaxInFlight)
	}
	if cfg.Enrichment.Freshness != 720*time.Hour {
		t.Errorf("Freshness = %v, want 720h", cfg.Enrichment.Freshness)
	}
	if cfg.Schedule.Cron != defaultCron {
		t.Errorf("Cron = %q", cfg.Schedule.Cron)
	}
}

func TestLoad_ZeroRetriesAllowed(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fetch:\n  max_retries: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", cfg.Fetch.MaxRetries)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("JOBSCOUT_TEST_DB", "/data/scout.db")
	cfg, err := Load(writeConfig(t, "database:\n  path: ${JOBSCOUT_TEST_DB}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/data/scout.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "searches: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing keywords", "searches:\n  - location: Austin\n", "keywords is required"},
		{"bad window", "searches:\n  - keywords: go\n    window: 2w\n", "unknown time window"},
		{"inverted delay", "fetch:\n  listing_delay:\n    min: 10s\n    max: 1s\n", "listing_delay"},
		{"bad duration", "fetch:\n  timeout: soon\n", "fetch.timeout"},
		{"backoff cap below base", "fetch:\n  base_backoff: 10s\n  max_backoff: 1s\n", "max_backoff"},
		{"negative workers", "pipeline:\n  workers: -1\n", "pipeline.workers"},
		{"slack without webhook", "notification:\n  type: slack\n", "webhook_url is required"},
		{"slack bad webhook", "notification:\n  type: slack\n  webhook_url: https://example.com/x\n", "hooks.slack.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
