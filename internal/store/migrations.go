package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		tool         TEXT NOT NULL,
		command      TEXT NOT NULL,
		strategy     TEXT NOT NULL DEFAULT 'direct',
		input        TEXT NOT NULL DEFAULT '',
		output       TEXT NOT NULL DEFAULT '',
		partitions   INTEGER NOT NULL DEFAULT 0,
		state        TEXT NOT NULL DEFAULT 'RUNNING',
		error        TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS partition_runs (
		job_id      TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		part_index  INTEGER NOT NULL,
		worker      INTEGER NOT NULL DEFAULT -1,
		command     TEXT NOT NULL DEFAULT '[]',
		records_in  INTEGER NOT NULL DEFAULT 0,
		records_out INTEGER NOT NULL DEFAULT 0,
		exit_code   INTEGER NOT NULL DEFAULT -1,
		stderr      TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		PRIMARY KEY (job_id, part_index)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_tool_strategy ON jobs(tool, strategy)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
