package queue

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const defaultLeaseTimeout = 5 * time.Minute

func orderClause(order Order) string {
	switch order {
	case OrderPriority:
		return "priority DESC, created_at, id"
	case OrderQuality:
		return "quality_score DESC NULLS LAST, created_at, id"
	default:
		return "created_at, id"
	}
}

// sortClaimed puts a RETURNING batch back into policy order; RETURNING itself is unordered.
func sortClaimed(items []*Item, order Order) {
	byCreated := func(a, b *Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
	slices.SortFunc(items, func(a, b *Item) int {
		switch order {
		case OrderPriority:
			if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
				return c
			}
		case OrderQuality:
			switch {
			case a.QualityScore != nil && b.QualityScore == nil:
				return -1
			case a.QualityScore == nil && b.QualityScore != nil:
				return 1
			case a.QualityScore != nil && b.QualityScore != nil:
				if c := cmp.Compare(*b.QualityScore, *a.QualityScore); c != 0 {
					return c
				}
			}
		}
		return byCreated(a, b)
	})
}

// Acquire claims the next eligible item for owner, or returns nil when the
// queue has nothing claimable. See AcquireBatch for the claim predicate.
func (s *Store) Acquire(ctx context.Context, queueName, owner string, opts AcquireOptions) (*Item, error) {
	items, err := s.AcquireBatch(ctx, queueName, owner, opts, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// AcquireBatch claims up to limit items in one conditional UPDATE. An item is
// eligible when it sits in the claim status (pending by default) and its
// available_at has passed, or when it is processing under an expired lease.
// Reclaiming a stale lease does not count an attempt. Items lost to a
// concurrent caller are simply absent from the result.
func (s *Store) AcquireBatch(ctx context.Context, queueName, owner string, opts AcquireOptions, limit int) ([]*Item, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(owner) == "" {
		return nil, errors.New("acquire: owner is required")
	}
	if limit <= 0 {
		limit = 1
	}
	claim := opts.ClaimStatus
	if claim == "" {
		claim = StatusPending
	}
	if claim == StatusProcessing || claim.IsTerminal() {
		return nil, fmt.Errorf("acquire: status %q is not claimable", claim)
	}
	lease := opts.LeaseTimeout
	if lease <= 0 {
		lease = defaultLeaseTimeout
	}

	now := s.Now()
	nowText := formatTime(now)
	predicate := "((status = ? AND available_at <= ?) OR (status = 'processing' AND lease_expiry < ?))"
	query := fmt.Sprintf(`UPDATE %[1]s
SET status = 'processing', lock_owner = ?, settled_by = NULL, lease_expiry = ?, updated_at = ?
WHERE id IN (
    SELECT id FROM %[1]s
    WHERE %[2]s
    ORDER BY %[3]s
    LIMIT ?%[4]s
)
AND %[2]s
RETURNING %[5]s`, table, predicate, orderClause(opts.Order), s.dialect.lockClause, itemColumns)

	args := []any{
		owner, formatTime(now.Add(lease)), nowText,
		string(claim), nowText, nowText,
		limit,
		string(claim), nowText, nowText,
	}

	var items []*Item
	err = s.write(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
		if err != nil {
			return err
		}
		items, err = scanItems(queueName, rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("acquire from %s: %w", queueName, err)
	}
	sortClaimed(items, opts.Order)
	return items, nil
}

// Complete settles an item into c.Status, clears its lease, and merges
// c.Fields into the payload. Repeating an identical call is a no-op: the row
// keeps its status, payload, and timestamps.
func (s *Store) Complete(ctx context.Context, queueName string, id int64, c Completion) (*Item, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	if c.Status == "" || c.Status == StatusProcessing {
		return nil, fmt.Errorf("complete: invalid target status %q", c.Status)
	}
	if _, ok := ParseStatus(string(c.Status)); !ok {
		return nil, fmt.Errorf("complete: unknown status %q", c.Status)
	}
	fields, err := encodeFields(c.Fields)
	if err != nil {
		return nil, err
	}

	var (
		tried       any
		staleRounds any
		cycles      any
	)
	if c.Deepening != nil {
		tried = encodeStrategies(c.Deepening.Tried)
		staleRounds = c.Deepening.StaleRounds
		cycles = c.Deepening.Cycles
	}

	nowText := formatTime(s.Now())
	target := string(c.Status)
	// A row already settled into the target status with no lease is the
	// replay of an earlier identical call, so timestamps stay put. An
	// owner-guarded replay must also come from the owner that settled it.
	settled := "(status = ? AND lock_owner IS NULL)"

	var where strings.Builder
	whereArgs := []any{id}
	where.WriteString("id = ?")
	if c.Owner != "" {
		where.WriteString(" AND ((status = 'processing' AND lock_owner = ?) OR (status = ? AND lock_owner IS NULL AND settled_by = ?))")
		whereArgs = append(whereArgs, c.Owner, target, c.Owner)
	}
	if c.From != "" {
		where.WriteString(" AND (status = ? OR " + settled + ")")
		whereArgs = append(whereArgs, string(c.From), target)
	}

	query := fmt.Sprintf(`UPDATE %s SET
    status = ?,
    lock_owner = NULL,
    settled_by = ?,
    lease_expiry = NULL,
    payload = %s,
    quality_score = COALESCE(?, quality_score),
    status_reason = COALESCE(?, status_reason),
    strategies_tried = COALESCE(?, strategies_tried),
    stale_rounds = COALESCE(?, stale_rounds),
    strategy_cycles = COALESCE(?, strategy_cycles),
    completed_at = CASE WHEN ? = 'completed' THEN COALESCE(CASE WHEN status = 'completed' THEN completed_at END, ?) ELSE completed_at END,
    updated_at = CASE WHEN %s THEN updated_at ELSE ? END
WHERE %s
RETURNING %s`, table, fmt.Sprintf(s.dialect.jsonMerge, "payload"), settled, where.String(), itemColumns)

	args := []any{
		target,
		nullableString(c.Owner),
		fields,
		nullableFloat(c.Score),
		nullableString(c.Reason),
		tried, staleRounds, cycles,
		target, nowText,
		target, nowText,
	}
	args = append(args, whereArgs...)

	var item *Item
	err = s.write(ctx, func(q querier) error {
		row := q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
		var scanErr error
		item, scanErr = scanItem(queueName, row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.explainMiss(ctx, queueName, id, c.Owner, c.From)
	}
	if err != nil {
		return nil, fmt.Errorf("complete %s#%d: %w", queueName, id, err)
	}
	return item, nil
}

// Fail records a failed attempt. The item returns to pending (after
// RetryDelay) until attempts reaches the cap, then becomes terminally failed.
// It returns the resulting status and attempt count. Failing an item that is
// already terminal returns ErrNotActive and leaves it untouched.
func (s *Store) Fail(ctx context.Context, queueName string, id int64, req FailRequest) (Status, int, error) {
	ctx = ensureContext(ctx)
	table, err := tableFor(queueName)
	if err != nil {
		return "", 0, err
	}
	kind := req.Kind
	if kind == "" {
		kind = FailureTransient
	}
	if req.MaxAttempts < 0 {
		req.MaxAttempts = 0
	}

	now := s.Now()
	capExpr := "COALESCE(NULLIF(?, 0), max_attempts)"
	where := "id = ? AND status IN ('pending', 'processing')"
	whereArgs := []any{id}
	if req.Owner != "" {
		where = "id = ? AND status = 'processing' AND lock_owner = ?"
		whereArgs = append(whereArgs, req.Owner)
	}

	query := fmt.Sprintf(`UPDATE %[1]s SET
    attempts = attempts + 1,
    max_attempts = %[2]s,
    status = CASE WHEN attempts + 1 >= %[2]s THEN 'failed' ELSE 'pending' END,
    available_at = CASE WHEN attempts + 1 >= %[2]s THEN available_at ELSE ? END,
    lock_owner = NULL,
    settled_by = NULL,
    lease_expiry = NULL,
    last_error = ?,
    failure_kind = ?,
    updated_at = ?
WHERE %[3]s
RETURNING status, attempts`, table, capExpr, where)

	args := []any{
		req.MaxAttempts,
		req.MaxAttempts,
		req.MaxAttempts, formatTime(now.Add(req.RetryDelay)),
		nullableString(req.Message),
		string(kind),
		formatTime(now),
	}
	args = append(args, whereArgs...)

	var (
		status   string
		attempts int
	)
	err = s.write(ctx, func(q querier) error {
		return q.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&status, &attempts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, s.explainMiss(ctx, queueName, id, req.Owner, "")
	}
	if err != nil {
		return "", 0, fmt.Errorf("fail %s#%d: %w", queueName, id, err)
	}
	return Status(status), attempts, nil
}

// ExtendLease pushes the lease expiry forward while owner still holds the item.
func (s *Store) ExtendLease(ctx context.Context, queueName string, id int64, owner string, timeout time.Duration) error {
	table, err := tableFor(queueName)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultLeaseTimeout
	}
	now := s.Now()
	res, err := s.execWithRetry(ctx,
		fmt.Sprintf("UPDATE %s SET lease_expiry = ?, updated_at = ? WHERE id = ? AND status = 'processing' AND lock_owner = ?", table),
		formatTime(now.Add(timeout)), formatTime(now), id, owner)
	if err != nil {
		return fmt.Errorf("extend lease %s#%d: %w", queueName, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("extend lease %s#%d: %w", queueName, id, ErrLeaseLost)
	}
	return nil
}

// explainMiss turns a zero-row conditional update into the most specific error.
func (s *Store) explainMiss(ctx context.Context, queueName string, id int64, owner string, from Status) error {
	item, err := s.Get(ctx, queueName, id)
	if err != nil {
		return err
	}
	switch {
	case owner != "" && (item.Status != StatusProcessing || item.LockOwner != owner):
		if item.SettledBy != "" && item.SettledBy != owner {
			return fmt.Errorf("%s#%d was settled by %q: %w", queueName, id, item.SettledBy, ErrLeaseLost)
		}
		if item.Status.IsTerminal() {
			return fmt.Errorf("%s#%d is %s: %w", queueName, id, item.Status, ErrNotActive)
		}
		return fmt.Errorf("%s#%d held by %q in %s: %w", queueName, id, item.LockOwner, item.Status, ErrLeaseLost)
	case from != "" && item.Status != from:
		return fmt.Errorf("%s#%d is %s, want %s: %w", queueName, id, item.Status, from, ErrNotActive)
	default:
		return fmt.Errorf("%s#%d is %s: %w", queueName, id, item.Status, ErrNotActive)
	}
}
