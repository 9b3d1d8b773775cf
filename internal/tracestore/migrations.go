package tracestore

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stage_samples (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		stage       TEXT NOT NULL,
		fn          TEXT NOT NULL,
		seconds     REAL NOT NULL,
		size        INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS job_outcomes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		fn          TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stage_samples_stage ON stage_samples(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_job_outcomes_fn ON job_outcomes(fn)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
