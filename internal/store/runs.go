package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// CreateRun appends a run in the running state and returns its id.
func (s *SQLiteStore) CreateRun(ctx context.Context, q model.Query, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO runs (started_at, keywords, location, time_window, result_limit, remote_only, part_time, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(startedAt), q.Keywords, q.Location, string(q.Window), q.Limit,
		q.Remote, q.PartTime, string(model.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

// FinishRun records the final counts and terminal status of a running run.
// Runs that already reached a terminal status are never modified.
func (s *SQLiteStore) FinishRun(ctx context.Context, r model.Run) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("finishing run %d: status %q is not terminal", r.ID, r.Status)
	}
	ended := s.now()
	if r.EndedAt != nil {
		ended = *r.EndedAt
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET
  ended_at = ?, discovered = ?, persisted_new = ?, persisted_updated = ?, unchanged = ?,
  failed = ?, status = ?, error_summary = ?
WHERE id = ? AND status = ?`,
		formatTime(ended), r.Discovered, r.PersistedNew, r.PersistedUpdated, r.Unchanged,
		r.Failed, string(r.Status), nullString(r.ErrorSummary),
		r.ID, string(model.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %d: run is not in the running state", r.ID)
	}
	return nil
}

// FailDanglingRuns finalizes runs left in the running state by a process
// that died before cleanup. It must only be called while holding the run lock.
func (s *SQLiteStore) FailDanglingRuns(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, ended_at = ?, error_summary = ?
WHERE status = ?`,
		string(model.RunFailed), formatTime(s.now()), reason, string(model.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failing dangling runs: %w", err)
	}
	return res.RowsAffected()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, ended_at, keywords, location, time_window, result_limit, remote_only,
  part_time, discovered, persisted_new, persisted_updated, unchanged, failed, status, error_summary
FROM runs
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r              model.Run
			started        string
			ended, summary sql.NullString
			window, status string
		)
		if err := rows.Scan(&r.ID, &started, &ended, &r.Query.Keywords, &r.Query.Location, &window,
			&r.Query.Limit, &r.Query.Remote, &r.Query.PartTime, &r.Discovered, &r.PersistedNew,
			&r.PersistedUpdated, &r.Unchanged, &r.Failed, &status, &summary); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if t, err := time.Parse(timeLayout, started); err == nil {
			r.StartedAt = t
		}
		if r.EndedAt, err = parseNullTime(ended); err != nil {
			return nil, err
		}
		r.Query.Window = model.TimeWindow(window)
		r.Status = model.RunStatus(status)
		r.ErrorSummary = stringPtr(summary)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
