package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

const employerColumns = `name, display_name, size_text, followers, industry, profile_url,
  last_enriched_at, enrich_attempts, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployer(row rowScanner) (model.Employer, error) {
	var (
		e                            model.Employer
		size, industry, profile, enr sql.NullString
		followers                    sql.NullInt64
		created                      string
	)
	if err := row.Scan(&e.Name, &e.DisplayName, &size, &followers, &industry, &profile, &enr, &e.EnrichAttempts, &created); err != nil {
		return model.Employer{}, err
	}
	e.SizeText = stringPtr(size)
	e.Followers = intPtr(followers)
	e.Industry = stringPtr(industry)
	e.ProfileURL = stringPtr(profile)

	var err error
	if e.LastEnrichedAt, err = parseNullTime(enr); err != nil {
		return model.Employer{}, err
	}
	if t, err := time.Parse(timeLayout, created); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

// GetEmployer looks up an employer by canonical name.
func (s *SQLiteStore) GetEmployer(ctx context.Context, name string) (model.Employer, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employerColumns+` FROM employers WHERE name = ?`, name)
	e, err := scanEmployer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Employer{}, false, nil
	}
	if err != nil {
		return model.Employer{}, false, fmt.Errorf("getting employer %q: %w", name, err)
	}
	return e, true, nil
}

// EnsureEmployer creates the employer row if it does not exist and returns
// the stored row. An existing empty display name is filled in.
func (s *SQLiteStore) EnsureEmployer(ctx context.Context, name, displayName string) (model.Employer, error) {
	if displayName == "" {
		displayName = name
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO employers (name, display_name, created_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET display_name = excluded.display_name
WHERE employers.display_name = ''`,
		name, displayName, formatTime(s.now()),
	)
	if err != nil {
		return model.Employer{}, fmt.Errorf("ensuring employer %q: %w", name, err)
	}
	e, _, err := s.GetEmployer(ctx, name)
	return e, err
}

// SaveEmployer merges the enrichment fields of e into the stored row. A nil
// or empty field keeps the stored value, the display name is only filled
// when empty, and neither the enrichment time nor the attempt count moves
// backwards. A writer holding an older snapshot can therefore never clear
// what another writer stored.
func (s *SQLiteStore) SaveEmployer(ctx context.Context, e model.Employer) error {
	enriched := nullTime(e.LastEnrichedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE employers SET
  display_name = CASE WHEN display_name = '' THEN ? ELSE display_name END,
  size_text = COALESCE(NULLIF(?, ''), size_text),
  followers = COALESCE(?, followers),
  industry = COALESCE(NULLIF(?, ''), industry),
  profile_url = COALESCE(NULLIF(?, ''), profile_url),
  last_enriched_at = CASE
    WHEN last_enriched_at IS NULL OR ? > last_enriched_at THEN COALESCE(?, last_enriched_at)
    ELSE last_enriched_at END,
  enrich_attempts = MAX(enrich_attempts, ?)
WHERE name = ?`,
		e.DisplayName, nullString(e.SizeText), nullInt(e.Followers), nullString(e.Industry),
		nullString(e.ProfileURL), enriched, enriched, e.EnrichAttempts, e.Name,
	)
	if err != nil {
		return fmt.Errorf("saving employer %q: %w", e.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("saving employer %q: no such employer", e.Name)
	}
	return nil
}

// IncrementEnrichAttempts records a failed enrichment and returns the row.
func (s *SQLiteStore) IncrementEnrichAttempts(ctx context.Context, name string) (model.Employer, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE employers SET enrich_attempts = enrich_attempts + 1 WHERE name = ?`, name,
	); err != nil {
		return model.Employer{}, fmt.Errorf("recording enrichment attempt for %q: %w", name, err)
	}
	e, _, err := s.GetEmployer(ctx, name)
	return e, err
}

// StaleEmployers returns employers never enriched or last enriched before
// cutoff, those with fewer failed attempts first. limit <= 0 means no limit.
func (s *SQLiteStore) StaleEmployers(ctx context.Context, cutoff time.Time, limit int) ([]model.Employer, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+employerColumns+`
FROM employers
WHERE last_enriched_at IS NULL OR last_enriched_at < ?
ORDER BY enrich_attempts ASC, name ASC
LIMIT ?`, formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale employers: %w", err)
	}
	defer rows.Close()

	var out []model.Employer
	for rows.Next() {
		e, err := scanEmployer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning employer: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MissingEmployers returns the employer keys referenced by postings whose
// employer row does not exist, with their display names.
func (s *SQLiteStore) MissingEmployers(ctx context.Context) ([]model.EmployerRef, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.employer_name, MAX(p.employer_display)
FROM postings p
LEFT JOIN employers e ON e.name = p.employer_name
WHERE p.employer_name IS NOT NULL AND p.employer_name != '' AND e.name IS NULL
GROUP BY p.employer_name
ORDER BY p.employer_name`)
	if err != nil {
		return nil, fmt.Errorf("listing missing employers: %w", err)
	}
	defer rows.Close()

	var refs []model.EmployerRef
	for rows.Next() {
		var (
			key     string
			display sql.NullString
		)
		if err := rows.Scan(&key, &display); err != nil {
			return nil, fmt.Errorf("scanning missing employer: %w", err)
		}
		ref := model.EmployerRef{Key: key, DisplayName: display.String}
		if ref.DisplayName == "" {
			ref.DisplayName = key
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// EnrichmentStats summarizes employer enrichment relative to cutoff.
func (s *SQLiteStore) EnrichmentStats(ctx context.Context, cutoff time.Time) (model.EnrichmentStats, error) {
	var st model.EnrichmentStats
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN last_enriched_at >= ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN last_enriched_at < ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN last_enriched_at IS NULL THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN enrich_attempts > 0 THEN 1 ELSE 0 END), 0)
FROM employers`, formatTime(cutoff), formatTime(cutoff),
	).Scan(&st.Employers, &st.Enriched, &st.Stale, &st.NeverEnriched, &st.WithFailures)
	if err != nil {
		return st, fmt.Errorf("computing enrichment stats: %w", err)
	}

	if st.Postings, err = s.CountPostings(ctx); err != nil {
		return st, err
	}
	missing, err := s.MissingEmployers(ctx)
	if err != nil {
		return st, err
	}
	st.MissingEmployer = len(missing)
	return st, nil
}
