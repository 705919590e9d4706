package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/amishk599/jobscout/internal/model"
)

// migration is one forward-only schema step. Every statement must be safe to
// re-run on a schema where the step was partially applied.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
	{version: 3, apply: migrateV3},
}

// SchemaVersion is the version Migrate brings a database to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every step newer than the recorded user_version, each in
// its own transaction together with the version bump.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	current, err := s.Version(ctx)
	if err != nil {
		return &model.MigrationError{Version: 0, Err: err}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return &model.MigrationError{Version: m.version, Err: err}
		}
	}
	return nil
}

// Version returns the recorded schema version.
func (s *SQLiteStore) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, m.version)); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// ---- Schema v1: tables ----

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS employers (
  name             TEXT PRIMARY KEY,
  display_name     TEXT NOT NULL DEFAULT '',
  size_text        TEXT,
  followers        INTEGER,
  industry         TEXT,
  profile_url      TEXT,
  last_enriched_at TEXT,
  enrich_attempts  INTEGER NOT NULL DEFAULT 0,
  created_at       TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS postings (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  external_id     TEXT NOT NULL,
  query_key       TEXT NOT NULL,
  local_key       TEXT NOT NULL UNIQUE,
  title           TEXT NOT NULL,
  employer_name   TEXT REFERENCES employers(name),
  employer_display TEXT NOT NULL DEFAULT '',
  body            TEXT NOT NULL DEFAULT '',
  location        TEXT,
  employment_type TEXT,
  seniority       TEXT,
  job_function    TEXT,
  industries      TEXT,
  salary_text     TEXT,
  posted_text     TEXT,
  posted_at       TEXT,
  applicants_text TEXT,
  source_url      TEXT NOT NULL,
  listing_url     TEXT,
  work_type       TEXT NOT NULL DEFAULT 'unknown',
  content_hash    TEXT NOT NULL,
  run_id          INTEGER,
  discovered_at   TEXT NOT NULL,
  updated_at      TEXT NOT NULL,
  UNIQUE (external_id, query_key)
);`, `
CREATE TABLE IF NOT EXISTS runs (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at        TEXT NOT NULL,
  ended_at          TEXT,
  keywords          TEXT NOT NULL,
  location          TEXT NOT NULL DEFAULT '',
  time_window       TEXT NOT NULL DEFAULT 'any',
  result_limit      INTEGER NOT NULL DEFAULT 0,
  remote_only       INTEGER NOT NULL DEFAULT 0,
  part_time         INTEGER NOT NULL DEFAULT 0,
  discovered        INTEGER NOT NULL DEFAULT 0,
  persisted_new     INTEGER NOT NULL DEFAULT 0,
  persisted_updated INTEGER NOT NULL DEFAULT 0,
  failed            INTEGER NOT NULL DEFAULT 0,
  status            TEXT NOT NULL,
  error_summary     TEXT
);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---- Schema v2: indexes and the terminal-run guard ----

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_postings_employer ON postings(employer_name);`,
		`CREATE INDEX IF NOT EXISTS idx_employers_last_enriched ON employers(last_enriched_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
		`
CREATE TRIGGER IF NOT EXISTS runs_terminal_immutable
BEFORE UPDATE ON runs
WHEN OLD.status != 'running'
BEGIN
  SELECT RAISE(ABORT, 'run already finalized');
END;`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---- Schema v3: company profile link on postings, unchanged count on runs ----

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	if !columnExists(ctx, tx, "postings", "company_url") {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE postings ADD COLUMN company_url TEXT;`); err != nil {
			return err
		}
	}
	if !columnExists(ctx, tx, "runs", "unchanged") {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE runs ADD COLUMN unchanged INTEGER NOT NULL DEFAULT 0;`); err != nil {
			return err
		}
	}
	return nil
}

func columnExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRowContext(ctx, query, col).Scan(&one)
	return err == nil
}
