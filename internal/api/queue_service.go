package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"smoothbdr/internal/queue"
)

// ErrInvalidRequest marks caller mistakes such as a malformed lead payload.
var ErrInvalidRequest = errors.New("invalid request")

// QueueStore abstracts the Ledger operations the control surface needs.
type QueueStore interface {
	List(ctx context.Context, queueName string, filter queue.ListFilter) ([]*queue.Item, error)
	Get(ctx context.Context, queueName string, id int64) (*queue.Item, error)
	Depths(ctx context.Context) (map[string]queue.Stats, error)
	Enqueue(ctx context.Context, queueName string, item queue.NewItem) (*queue.Item, bool, error)
	RetryFailed(ctx context.Context, queueName string, ids ...int64) (int64, error)
	Approve(ctx context.Context, queueName string, id int64) error
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store QueueStore
}

// NewQueueService constructs a QueueService around the provided store.
func NewQueueService(store QueueStore) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns items of one queue, optionally filtered by status.
func (s *QueueService) List(ctx context.Context, queueName string, filter queue.ListFilter) ([]QueueItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, queueName, filter)
	if err != nil {
		return nil, err
	}
	return FromQueueItems(items), nil
}

// Describe fetches a single queue item.
func (s *QueueService) Describe(ctx context.Context, queueName string, id int64) (*QueueItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.Get(ctx, queueName, id)
	if err != nil {
		return nil, err
	}
	dto := FromQueueItem(item)
	return &dto, nil
}

// Stats returns per-status counts for every queue.
func (s *QueueService) Stats(ctx context.Context) (map[string]map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	depths, err := s.store.Depths(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int, len(depths))
	for name, stats := range depths {
		out[name] = MergeQueueStats(stats)
	}
	return out, nil
}

// SubmitLead inserts a new discovery item. A missing lead ref is generated so
// every item downstream can be traced back to the submission.
func (s *QueueService) SubmitLead(ctx context.Context, req LeadRequest) (QueueItem, error) {
	if s == nil || s.store == nil {
		return QueueItem{}, errors.New("queue service unavailable")
	}
	if len(req.Payload) > 0 {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(req.Payload, &object); err != nil {
			return QueueItem{}, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidRequest)
		}
	}
	ref := strings.TrimSpace(req.LeadRef)
	if ref == "" {
		ref = uuid.NewString()
	}
	item, _, err := s.store.Enqueue(ctx, queue.Discovery, queue.NewItem{
		LeadRef:  ref,
		Priority: req.Priority,
		Payload:  req.Payload,
	})
	if err != nil {
		return QueueItem{}, err
	}
	return FromQueueItem(item), nil
}

// Retry resets failed items of one queue back to pending.
func (s *QueueService) Retry(ctx context.Context, queueName string, ids []int64) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.RetryFailed(ctx, queueName, ids...)
}

// Approve releases an item held for approval and returns its new state.
func (s *QueueService) Approve(ctx context.Context, queueName string, id int64) (*QueueItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if err := s.store.Approve(ctx, queueName, id); err != nil {
		return nil, err
	}
	return s.Describe(ctx, queueName, id)
}
