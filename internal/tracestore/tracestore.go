// Package tracestore persists recorded stage timings and job outcomes
// to SQLite for offline analysis. It is a telemetry sink for the trace
// flag; dispatcher state itself is never persisted.
package tracestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/lazyjs/pkg/model"

	_ "modernc.org/sqlite"
)

// Store writes trace events to a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the trace database at dbPath. Use ":memory:"
// for an in-memory database (useful in tests).
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL keeps concurrent readers cheap while the dispatcher writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "tracestore"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// RecordSample stores one stage-timing observation.
func (s *Store) RecordSample(ctx context.Context, stage model.Stage, fn string, seconds float64, size int) error {
	s.logger.Debug("sql", "op", "insert", "table", "stage_samples", "stage", stage)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_samples (stage, fn, seconds, size, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		stage.String(), fn, seconds, size, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecordOutcome stores the terminal status of one job. jobErr may be
// nil for successful jobs.
func (s *Store) RecordOutcome(ctx context.Context, fn string, status model.JobStatus, jobErr error) error {
	s.logger.Debug("sql", "op", "insert", "table", "job_outcomes", "fn", fn, "status", status)
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_outcomes (fn, status, error, recorded_at) VALUES (?, ?, ?, ?)`,
		fn, status.String(), msg, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// StageStats aggregates the recorded samples of one stage.
type StageStats struct {
	Stage       model.Stage
	Count       int
	MeanSeconds float64
	TotalSize   int64
}

// StageSummary returns per-stage aggregates over all recorded samples.
func (s *Store) StageSummary(ctx context.Context) ([]StageStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), AVG(seconds), SUM(size) FROM stage_samples GROUP BY stage ORDER BY stage`)
	if err != nil {
		return nil, fmt.Errorf("query stage summary: %w", err)
	}
	defer rows.Close()

	var out []StageStats
	for rows.Next() {
		var st StageStats
		var stage string
		if err := rows.Scan(&stage, &st.Count, &st.MeanSeconds, &st.TotalSize); err != nil {
			return nil, fmt.Errorf("scan stage summary: %w", err)
		}
		st.Stage = model.Stage(stage)
		out = append(out, st)
	}
	return out, rows.Err()
}

// OutcomeCounts returns how many jobs ended in each terminal status.
func (s *Store) OutcomeCounts(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_outcomes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outcomes: %w", err)
		}
		out[model.JobStatus(status)] = n
	}
	return out, rows.Err()
}
