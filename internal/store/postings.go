package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/amishk599/jobscout/internal/model"
)

// contentHash fingerprints the fields whose change makes a re-discovered
// posting count as updated. Relative posting age drifts between runs and is
// left out.
func contentHash(p model.Posting) string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	fields := []string{
		p.Title,
		p.EmployerKey,
		p.Body,
		deref(p.Location),
		deref(p.EmploymentType),
		deref(p.Seniority),
		deref(p.JobFunction),
		deref(p.Industries),
		deref(p.SalaryText),
		deref(p.ApplicantsText),
		deref(p.ListingURL),
		deref(p.CompanyURL),
		string(p.WorkType),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// UpsertPosting inserts p, or updates the row with the same external id and
// query when its content changed. The referenced employer row is created
// first when absent.
func (s *SQLiteStore) UpsertPosting(ctx context.Context, p model.Posting) (model.UpsertResult, error) {
	if p.ExternalID == "" || p.Query == "" {
		return model.Unchanged, fmt.Errorf("upserting posting: external id and query key are required")
	}
	if p.LocalKey == "" {
		p.LocalKey = model.PostingLocalKey(p.Query, p.ExternalID)
	}
	if p.WorkType == "" {
		p.WorkType = model.WorkTypeUnknown
	}
	hash := contentHash(p)
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Unchanged, fmt.Errorf("upserting posting %s: %w", p.ExternalID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var employer sql.NullString
	if p.EmployerKey != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO employers (name, display_name, created_at) VALUES (?, ?, ?)`,
			p.EmployerKey, p.EmployerName, formatTime(now),
		); err != nil {
			return model.Unchanged, fmt.Errorf("ensuring employer %q: %w", p.EmployerKey, err)
		}
		employer = sql.NullString{String: p.EmployerKey, Valid: true}
	}

	var (
		id      int64
		oldHash string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, content_hash FROM postings WHERE external_id = ? AND query_key = ?`,
		p.ExternalID, p.Query,
	).Scan(&id, &oldHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		discovered := p.DiscoveredAt
		if discovered.IsZero() {
			discovered = now
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO postings (
  external_id, query_key, local_key, title, employer_name, employer_display, body,
  location, employment_type, seniority, job_function, industries, salary_text,
  posted_text, posted_at, applicants_text, source_url, listing_url, company_url,
  work_type, content_hash, run_id, discovered_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ExternalID, p.Query, p.LocalKey, p.Title, employer, p.EmployerName, p.Body,
			nullString(p.Location), nullString(p.EmploymentType), nullString(p.Seniority),
			nullString(p.JobFunction), nullString(p.Industries), nullString(p.SalaryText),
			nullString(p.PostedText), nullTime(p.PostedAt), nullString(p.ApplicantsText),
			p.SourceURL, nullString(p.ListingURL), nullString(p.CompanyURL),
			string(p.WorkType), hash, p.RunID, formatTime(discovered), formatTime(now),
		)
		if err != nil {
			return model.Unchanged, fmt.Errorf("inserting posting %s: %w", p.ExternalID, err)
		}
		if err := tx.Commit(); err != nil {
			return model.Unchanged, fmt.Errorf("committing posting %s: %w", p.ExternalID, err)
		}
		return model.Inserted, nil

	case err != nil:
		return model.Unchanged, fmt.Errorf("looking up posting %s: %w", p.ExternalID, err)

	case oldHash == hash:
		return model.Unchanged, nil
	}

	_, err = tx.ExecContext(ctx, `
UPDATE postings SET
  title = ?, employer_name = ?, employer_display = ?, body = ?, location = ?,
  employment_type = ?, seniority = ?, job_function = ?, industries = ?, salary_text = ?,
  posted_text = COALESCE(?, posted_text), posted_at = COALESCE(posted_at, ?),
  applicants_text = ?, source_url = ?, listing_url = ?, company_url = ?,
  work_type = ?, content_hash = ?, run_id = ?, updated_at = ?
WHERE id = ?`,
		p.Title, employer, p.EmployerName, p.Body, nullString(p.Location),
		nullString(p.EmploymentType), nullString(p.Seniority), nullString(p.JobFunction),
		nullString(p.Industries), nullString(p.SalaryText),
		nullString(p.PostedText), nullTime(p.PostedAt),
		nullString(p.ApplicantsText), p.SourceURL, nullString(p.ListingURL), nullString(p.CompanyURL),
		string(p.WorkType), hash, p.RunID, formatTime(now), id,
	)
	if err != nil {
		return model.Unchanged, fmt.Errorf("updating posting %s: %w", p.ExternalID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Unchanged, fmt.Errorf("committing posting %s: %w", p.ExternalID, err)
	}
	return model.Updated, nil
}

// CountPostings returns the number of stored postings.
func (s *SQLiteStore) CountPostings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting postings: %w", err)
	}
	return n, nil
}
