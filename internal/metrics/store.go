package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncRun records one cache-population attempt.
type SyncRun struct {
	ID        int64
	StartedAt time.Time
	Fetched   bool // whether the remote menu was requested
	ItemCount int  // items in the store after the run
	LatencyMS int64
	Error     string
}

// Store handles persistence of sync metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a sync run to the database.
func (s *Store) Record(ctx context.Context, run SyncRun) error {
	ts := run.StartedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, fetched, item_count, latency_ms, error)
		VALUES (?, ?, ?, ?, ?)`,
		ts.UnixMilli(), run.Fetched, run.ItemCount, run.LatencyMS, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, fetched, item_count, latency_ms, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		var startedAt int64
		if err := rows.Scan(&r.ID, &startedAt, &r.Fetched, &r.ItemCount, &r.LatencyMS, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, threshold.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sync runs: %w", err)
	}
	return res.RowsAffected()
}
