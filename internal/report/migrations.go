package report

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all status tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		workflow    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'Submitting',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS status_updates (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id             TEXT NOT NULL,
		step               TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		minor_status       TEXT NOT NULL DEFAULT '',
		application_status TEXT NOT NULL DEFAULT '',
		source             TEXT NOT NULL DEFAULT 'Unknown',
		timestamp          TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS merge_events (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT NOT NULL,
		step            TEXT NOT NULL,
		new_entries     INTEGER NOT NULL DEFAULT 0,
		updated_entries INTEGER NOT NULL DEFAULT 0,
		timestamp       TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_status_updates_run_id ON status_updates(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_merge_events_run_id ON merge_events(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
