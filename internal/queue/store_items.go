package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const defaultMaxAttempts = 3

// Enqueue inserts a new item. Items derived from an upstream item carry a
// SourceRef; inserting the same source key twice returns the existing row with
// created=false, so a downstream write retried after a crash is harmless.
func (s *Store) Enqueue(ctx context.Context, queueName string, item NewItem) (*Item, bool, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return nil, false, err
	}
	payload, err := encodePayload(item.Payload)
	if err != nil {
		return nil, false, err
	}
	status := item.Status
	if status == "" {
		status = StatusPending
	}
	if status != StatusPending && status != StatusAwaitingApproval {
		return nil, false, fmt.Errorf("enqueue: initial status must be pending or awaiting_approval, got %q", status)
	}
	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var sourceQueue, sourceID, sourceSeq any
	if item.Source != nil {
		sourceQueue, sourceID, sourceSeq = item.Source.Queue, item.Source.ItemID, item.Source.Seq
	}
	nowText := formatTime(s.Now())

	query := fmt.Sprintf(`INSERT INTO %s (
    status, max_attempts, priority, quality_score, lead_ref, source_queue, source_item_id, source_seq,
    payload, strategies_tried, stale_rounds, strategy_cycles, available_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source_queue, source_item_id, source_seq) DO NOTHING
RETURNING %s`, table, itemColumns)
	args := []any{
		string(status), maxAttempts, item.Priority, nullableFloat(item.QualityScore), nullableString(item.LeadRef),
		sourceQueue, sourceID, sourceSeq,
		payload, encodeStrategies(item.Deepening.Tried), item.Deepening.StaleRounds, item.Deepening.Cycles,
		nowText, nowText, nowText,
	}

	var created *Item
	err = s.write(ctx, func(q querier) error {
		row := q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
		var scanErr error
		created, scanErr = scanItem(queueName, row)
		return scanErr
	})
	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, sql.ErrNoRows) && item.Source != nil:
		existing, getErr := s.getBySource(ctx, queueName, *item.Source)
		return existing, false, getErr
	default:
		return nil, false, fmt.Errorf("enqueue into %s: %w", queueName, err)
	}
}

func (s *Store) getBySource(ctx context.Context, queueName string, src SourceRef) (*Item, error) {
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE source_queue = ? AND source_item_id = ? AND source_seq = ?", itemColumns, table)),
		src.Queue, src.ItemID, src.Seq)
	item, err := scanItem(queueName, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s item from %s#%d/%d: %w", queueName, src.Queue, src.ItemID, src.Seq, ErrNotFound)
	}
	return item, err
}

// Get fetches a single item.
func (s *Store) Get(ctx context.Context, queueName string, id int64) (*Item, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", itemColumns, table)), id)
	item, err := scanItem(queueName, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s#%d: %w", queueName, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s#%d: %w", queueName, id, err)
	}
	return item, nil
}

// List returns items in id order, optionally filtered by status and lead.
func (s *Store) List(ctx context.Context, queueName string, filter ListFilter) ([]*Item, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.LeadRef != "" {
		clauses = append(clauses, "lead_ref = ?")
		args = append(args, filter.LeadRef)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", itemColumns, table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", queueName, err)
	}
	return scanItems(queueName, rows)
}

// RetryFailed resets failed items to pending with a fresh attempt budget. With
// no ids every failed item in the queue is reset.
func (s *Store) RetryFailed(ctx context.Context, queueName string, ids ...int64) (int64, error) {
	table, err := tableFor(queueName)
	if err != nil {
		return 0, err
	}
	nowText := formatTime(s.Now())
	query := fmt.Sprintf(`UPDATE %s SET status = 'pending', attempts = 0, last_error = NULL, failure_kind = NULL,
    status_reason = NULL, lock_owner = NULL, settled_by = NULL, lease_expiry = NULL, available_at = ?, updated_at = ?
WHERE status = 'failed'`, table)
	args := []any{nowText, nowText}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		args = append(args, int64sToArgs(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed %s: %w", queueName, err)
	}
	return res.RowsAffected()
}

// Approve releases an item held in awaiting_approval to pending.
func (s *Store) Approve(ctx context.Context, queueName string, id int64) error {
	table, err := tableFor(queueName)
	if err != nil {
		return err
	}
	nowText := formatTime(s.Now())
	res, err := s.execWithRetry(ctx,
		fmt.Sprintf("UPDATE %s SET status = 'pending', settled_by = NULL, available_at = ?, updated_at = ? WHERE id = ? AND status = 'awaiting_approval'", table),
		nowText, nowText, id)
	if err != nil {
		return fmt.Errorf("approve %s#%d: %w", queueName, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainMiss(ctx, queueName, id, "", StatusAwaitingApproval)
	}
	return nil
}

// ResetExpiredLeases returns processing items whose lease has expired to
// pending without counting an attempt. Acquire reclaims such items on its
// own; this is the operator-facing sweep.
func (s *Store) ResetExpiredLeases(ctx context.Context, queueName string) (int64, error) {
	table, err := tableFor(queueName)
	if err != nil {
		return 0, err
	}
	nowText := formatTime(s.Now())
	res, err := s.execWithRetry(ctx,
		fmt.Sprintf("UPDATE %s SET status = 'pending', lock_owner = NULL, settled_by = NULL, lease_expiry = NULL, updated_at = ? WHERE status = 'processing' AND lease_expiry < ?", table),
		nowText, nowText)
	if err != nil {
		return 0, fmt.Errorf("reset expired leases in %s: %w", queueName, err)
	}
	return res.RowsAffected()
}
