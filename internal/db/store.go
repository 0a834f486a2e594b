// Package db persists the audit trail: tracked entities, cycles, dispatches.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m0rik/panenap/internal/model"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// SyncEntities replaces the persisted entity mirror with the current
// registry snapshot. The mirror only serves CLI inspection; the registry in
// memory stays the source of truth.
func (s *Store) SyncEntities(ctx context.Context, entities []model.TrackedEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entity sync: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear entities: %w", err)
	}
	now := ts(time.Now().UTC())
	for _, e := range entities {
		var pid any
		if e.PID != nil {
			pid = *e.PID
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO entities(entity_id, pid, visible, updated_at) VALUES (?, ?, ?, ?)
`, e.EntityID, pid, boolToInt(e.Visible), now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert entity %s: %w", e.EntityID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entity sync: %w", err)
	}
	return nil
}

func (s *Store) ListEntities(ctx context.Context) ([]model.TrackedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, pid, visible FROM entities ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.TrackedEntity, 0)
	for rows.Next() {
		var e model.TrackedEntity
		var pid sql.NullInt64
		var visible int
		if err := rows.Scan(&e.EntityID, &pid, &visible); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if pid.Valid {
			v := int(pid.Int64)
			e.PID = &v
		}
		e.Visible = visible != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordCycle stores one cycle and its dispatches atomically. It implements
// engine.Recorder.
func (s *Store) RecordCycle(ctx context.Context, cycle model.CycleRecord, dispatches []model.DispatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO cycles(cycle_id, triggered_by, started_at, completed_at, entity_count, plan_size, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, cycle.CycleID, cycle.TriggeredBy, ts(cycle.StartedAt), nullableTS(cycle.CompletedAt),
		cycle.EntityCount, cycle.PlanSize, nullableStr(cycle.Error)); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert cycle: %w", err)
	}
	for _, d := range dispatches {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dispatches(dispatch_id, cycle_id, pid, action, result_code, error, dispatched_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, d.DispatchID, d.CycleID, d.PID, string(d.Action), string(d.ResultCode),
			nullableStr(d.Error), ts(d.DispatchedAt)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert dispatch pid %d: %w", d.PID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle record: %w", err)
	}
	return nil
}

func (s *Store) ListCycles(ctx context.Context, limit int) ([]model.CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT cycle_id, triggered_by, started_at, completed_at, entity_count, plan_size, error
FROM cycles ORDER BY started_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.CycleRecord, 0, limit)
	for rows.Next() {
		var c model.CycleRecord
		var startedAt string
		var completedAt, errStr sql.NullString
		if err := rows.Scan(&c.CycleID, &c.TriggeredBy, &startedAt, &completedAt, &c.EntityCount, &c.PlanSize, &errStr); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if c.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, fmt.Errorf("parse cycle started_at: %w", err)
		}
		if completedAt.Valid {
			t, err := parseTS(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse cycle completed_at: %w", err)
			}
			c.CompletedAt = &t
		}
		if errStr.Valid {
			c.Error = &errStr.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCycle(ctx context.Context, cycleID string) (model.CycleRecord, error) {
	var c model.CycleRecord
	var startedAt string
	var completedAt, errStr sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT cycle_id, triggered_by, started_at, completed_at, entity_count, plan_size, error
FROM cycles WHERE cycle_id = ?
`, cycleID).Scan(&c.CycleID, &c.TriggeredBy, &startedAt, &completedAt, &c.EntityCount, &c.PlanSize, &errStr)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CycleRecord{}, fmt.Errorf("cycle %s: %w", cycleID, model.ErrNotFound)
	}
	if err != nil {
		return model.CycleRecord{}, fmt.Errorf("get cycle: %w", err)
	}
	if c.StartedAt, err = parseTS(startedAt); err != nil {
		return model.CycleRecord{}, fmt.Errorf("parse cycle started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := parseTS(completedAt.String)
		if err != nil {
			return model.CycleRecord{}, fmt.Errorf("parse cycle completed_at: %w", err)
		}
		c.CompletedAt = &t
	}
	if errStr.Valid {
		c.Error = &errStr.String
	}
	return c, nil
}

func (s *Store) ListDispatches(ctx context.Context, cycleID string) ([]model.DispatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT dispatch_id, cycle_id, pid, action, result_code, error, dispatched_at
FROM dispatches WHERE cycle_id = ? ORDER BY pid
`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.DispatchRecord, 0)
	for rows.Next() {
		var d model.DispatchRecord
		var action, resultCode, dispatchedAt string
		var errStr sql.NullString
		if err := rows.Scan(&d.DispatchID, &d.CycleID, &d.PID, &action, &resultCode, &errStr, &dispatchedAt); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.Action = model.Action(action)
		d.ResultCode = model.ResultCode(resultCode)
		if errStr.Valid {
			d.Error = &errStr.String
		}
		if d.DispatchedAt, err = parseTS(dispatchedAt); err != nil {
			return nil, fmt.Errorf("parse dispatched_at: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeCycles keeps the newest `keep` cycles and drops the rest together
// with their dispatches.
func (s *Store) PurgeCycles(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
DELETE FROM cycles WHERE cycle_id NOT IN (
	SELECT cycle_id FROM cycles ORDER BY started_at DESC LIMIT ?
)
`, keep); err != nil {
		return fmt.Errorf("purge cycles: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTS(v *time.Time) any {
	if v == nil {
		return nil
	}
	return ts(*v)
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
