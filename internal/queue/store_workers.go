package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const workerColumns = "name, stage, enabled, last_heartbeat, processed_count, error_count, started_at, current_item_ref, worker_id, pid"

const systemRunningKey = "running"

func scanWorker(scanner interface{ Scan(dest ...any) error }) (*WorkerRecord, error) {
	var (
		rec          WorkerRecord
		enabled      int
		heartbeatRaw sql.NullString
		startedRaw   sql.NullString
		currentRef   sql.NullString
		workerID     sql.NullString
	)
	if err := scanner.Scan(&rec.Name, &rec.Stage, &enabled, &heartbeatRaw, &rec.ProcessedCount, &rec.ErrorCount,
		&startedRaw, &currentRef, &workerID, &rec.PID); err != nil {
		return nil, err
	}
	rec.Enabled = enabled != 0
	rec.LastHeartbeat = parseNullableTime(heartbeatRaw)
	rec.StartedAt = parseNullableTime(startedRaw)
	rec.CurrentItemRef = currentRef.String
	rec.WorkerID = workerID.String
	return &rec, nil
}

// EnsureWorker creates a worker record if none exists. Existing records,
// including their enabled flag, are left alone.
func (s *Store) EnsureWorker(ctx context.Context, name, stage string, enabled bool) error {
	_, err := s.execWithRetry(ctx,
		"INSERT INTO workers (name, stage, enabled, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (name) DO NOTHING",
		name, stage, boolToInt(enabled), formatTime(s.Now()))
	if err != nil {
		return fmt.Errorf("ensure worker %s: %w", name, err)
	}
	return nil
}

// RecordHeartbeat upserts the worker's liveness row. The enabled flag and the
// counters are never touched here; a record first seen through a heartbeat
// starts enabled.
func (s *Store) RecordHeartbeat(ctx context.Context, hb Heartbeat) error {
	if strings.TrimSpace(hb.Name) == "" {
		return errors.New("heartbeat: worker name is required")
	}
	now := formatTime(s.Now())
	started := now
	if !hb.StartedAt.IsZero() {
		started = formatTime(hb.StartedAt)
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO workers (name, stage, enabled, last_heartbeat, started_at, worker_id, pid, updated_at)
VALUES (?, ?, 1, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    stage = excluded.stage,
    last_heartbeat = excluded.last_heartbeat,
    started_at = excluded.started_at,
    worker_id = excluded.worker_id,
    pid = excluded.pid,
    updated_at = excluded.updated_at`,
		hb.Name, hb.Stage, now, started, nullableString(hb.WorkerID), hb.PID, now)
	if err != nil {
		return fmt.Errorf("record heartbeat for %s: %w", hb.Name, err)
	}
	return nil
}

// SetCurrentItem records the item a worker is processing; an empty ref clears it.
func (s *Store) SetCurrentItem(ctx context.Context, name, ref string) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE workers SET current_item_ref = ?, updated_at = ? WHERE name = ?",
		nullableString(ref), formatTime(s.Now()), name)
	if err != nil {
		return fmt.Errorf("set current item for %s: %w", name, err)
	}
	return nil
}

// IncrementCounters adds to the cumulative processed and error counters.
func (s *Store) IncrementCounters(ctx context.Context, name string, processed, errs int) error {
	if processed == 0 && errs == 0 {
		return nil
	}
	_, err := s.execWithRetry(ctx,
		"UPDATE workers SET processed_count = processed_count + ?, error_count = error_count + ?, updated_at = ? WHERE name = ?",
		processed, errs, formatTime(s.Now()), name)
	if err != nil {
		return fmt.Errorf("increment counters for %s: %w", name, err)
	}
	return nil
}

// Workers lists every worker record by name.
func (s *Store) Workers(ctx context.Context) ([]WorkerRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+workerColumns+" FROM workers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()
	var out []WorkerRecord
	for rows.Next() {
		rec, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Worker fetches one worker record.
func (s *Store) Worker(ctx context.Context, name string) (*WorkerRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), s.dialect.rebind("SELECT "+workerColumns+" FROM workers WHERE name = ?"), name)
	rec, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %s: %w", name, err)
	}
	return rec, nil
}

// WorkerEnabled reports the enabled flag; a worker with no record is enabled.
func (s *Store) WorkerEnabled(ctx context.Context, name string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ensureContext(ctx), s.dialect.rebind("SELECT enabled FROM workers WHERE name = ?"), name).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read enabled flag for %s: %w", name, err)
	}
	return enabled != 0, nil
}

// SetWorkerEnabled flips the enabled flag, creating the record when needed.
// Running workers observe the change on their next loop iteration.
func (s *Store) SetWorkerEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.execWithRetry(ctx, `INSERT INTO workers (name, stage, enabled, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		name, name, boolToInt(enabled), formatTime(s.Now()))
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", name, err)
	}
	return nil
}

// SystemRunning reports the global pause flag. An unset flag means running.
func (s *Store) SystemRunning(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), s.dialect.rebind("SELECT value FROM system_state WHERE key = ?"), systemRunningKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read system state: %w", err)
	}
	return value != "false", nil
}

// SetSystemRunning pauses or resumes every worker loop.
func (s *Store) SetSystemRunning(ctx context.Context, running bool) error {
	value := "false"
	if running {
		value = "true"
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		systemRunningKey, value, formatTime(s.Now()))
	if err != nil {
		return fmt.Errorf("set system state: %w", err)
	}
	return nil
}
