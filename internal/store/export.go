package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ExportColumns is the fixed column order of the export table.
var ExportColumns = []string{
	"local_key", "external_id", "query", "title", "employer_name", "location", "work_type",
	"employment_type", "seniority", "job_function", "industries", "salary_text",
	"posted_text", "posted_at", "applicants_text", "source_url", "listing_url",
	"discovered_at", "updated_at", "body",
	"employer", "employer_size", "employer_followers", "employer_industry",
	"employer_profile_url", "employer_last_enriched_at", "employer_enrich_attempts",
}

// Table is a read-only tabular snapshot of all postings joined with their
// employer. Missing values are empty strings.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ExportTable reads every posting with its employer fields. It runs outside
// any write transaction and sees the latest committed state.
func (s *SQLiteStore) ExportTable(ctx context.Context) (*Table, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
  p.local_key, p.external_id, p.query_key, p.title, p.employer_display, p.location, p.work_type,
  p.employment_type, p.seniority, p.job_function, p.industries, p.salary_text,
  p.posted_text, p.posted_at, p.applicants_text, p.source_url, p.listing_url,
  p.discovered_at, p.updated_at, p.body,
  e.name, e.size_text, e.followers, e.industry, e.profile_url, e.last_enriched_at, e.enrich_attempts
FROM postings p
LEFT JOIN employers e ON e.name = p.employer_name
ORDER BY p.discovered_at, p.id`)
	if err != nil {
		return nil, fmt.Errorf("exporting postings: %w", err)
	}
	defer rows.Close()

	t := &Table{Columns: ExportColumns}
	for rows.Next() {
		vals := make([]sql.NullString, len(ExportColumns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = v.String
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading export rows: %w", err)
	}
	return t, nil
}

// Column returns the index of name in the table, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
