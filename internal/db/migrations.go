package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id TEXT PRIMARY KEY,
	pid INTEGER,
	visible INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	cycle_id TEXT PRIMARY KEY,
	triggered_by TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	entity_count INTEGER NOT NULL,
	plan_size INTEGER NOT NULL,
	error TEXT
);

CREATE INDEX IF NOT EXISTS cycles_started_at ON cycles(started_at);

CREATE TABLE IF NOT EXISTS dispatches (
	dispatch_id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	pid INTEGER NOT NULL,
	action TEXT NOT NULL CHECK(action IN ('resume','suspend')),
	result_code TEXT NOT NULL CHECK(result_code IN ('ok','gone','denied','error')),
	error TEXT,
	dispatched_at TEXT NOT NULL,
	FOREIGN KEY(cycle_id) REFERENCES cycles(cycle_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS dispatches_cycle_id ON dispatches(cycle_id);
`,
		DownSQL: `
DROP TABLE IF EXISTS dispatches;
DROP TABLE IF EXISTS cycles;
DROP TABLE IF EXISTS entities;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
