package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
)

// Heartbeat keeps a worker's Ledger record current and renews the leases of
// the items it holds.
type Heartbeat struct {
	store    *queue.Store
	logger   *slog.Logger
	info     queue.Heartbeat
	queue    string
	interval time.Duration
	lease    time.Duration

	mu   sync.Mutex
	held map[int64]struct{}
}

// NewHeartbeat creates a recorder for the worker described by info.
func NewHeartbeat(store *queue.Store, logger *slog.Logger, info queue.Heartbeat, queueName string, interval, lease time.Duration) *Heartbeat {
	return &Heartbeat{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		info:     info,
		queue:    queueName,
		interval: interval,
		lease:    lease,
		held:     make(map[int64]struct{}),
	}
}

// Beat writes the liveness timestamp.
func (h *Heartbeat) Beat(ctx context.Context) error {
	return h.store.RecordHeartbeat(ctx, h.info)
}

// Hold registers an item whose lease should be renewed.
func (h *Heartbeat) Hold(id int64) {
	h.mu.Lock()
	h.held[id] = struct{}{}
	h.mu.Unlock()
}

// Release stops renewing an item's lease.
func (h *Heartbeat) Release(id int64) {
	h.mu.Lock()
	delete(h.held, id)
	h.mu.Unlock()
}

func (h *Heartbeat) heldIDs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.held))
	for id := range h.held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetCurrent records the items being processed; no refs clears the marker.
func (h *Heartbeat) SetCurrent(ctx context.Context, refs ...string) error {
	return h.store.SetCurrentItem(ctx, h.info.Name, strings.Join(refs, ","))
}

// Count adds to the processed and error counters.
func (h *Heartbeat) Count(ctx context.Context, processed, errs int) error {
	return h.store.IncrementCounters(ctx, h.info.Name, processed, errs)
}

// Run beats and renews held leases every interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	if err := h.Beat(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(h.logger, "heartbeat write failed", "heartbeat_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger connectivity"),
			logging.String(logging.FieldImpact, "worker may be reported stale"),
		)
	}
	for _, id := range h.heldIDs() {
		err := h.store.ExtendLease(ctx, h.queue, id, h.info.WorkerID, h.lease)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrLeaseLost):
			h.Release(id)
			logging.WarnWithContext(h.logger, "lease lost while processing", "lease_lost",
				logging.Int64(logging.FieldItemID, id),
				logging.String(logging.FieldErrorHint, "raise lease_timeout if processing routinely outlives it"),
				logging.String(logging.FieldImpact, "item may be processed twice"),
			)
		case errors.Is(err, context.Canceled):
			return
		default:
			h.logger.Warn("lease renewal failed", logging.Int64(logging.FieldItemID, id), logging.Error(err))
		}
	}
}
