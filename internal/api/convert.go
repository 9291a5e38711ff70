package api

import (
	"time"

	"smoothbdr/internal/queue"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:           item.ID,
		Queue:        item.Queue,
		Status:       string(item.Status),
		LeadRef:      item.LeadRef,
		Priority:     item.Priority,
		Attempts:     item.Attempts,
		MaxAttempts:  item.MaxAttempts,
		LockOwner:    item.LockOwner,
		LeaseExpiry:  formatOptional(item.LeaseExpiry),
		QualityScore: item.QualityScore,
		LastError:    item.LastError,
		FailureKind:  string(item.FailureKind),
		StatusReason: item.StatusReason,
		Payload:      item.Payload,
		AvailableAt:  formatTime(item.AvailableAt),
		CreatedAt:    formatTime(item.CreatedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
		CompletedAt:  formatOptional(item.CompletedAt),
	}
	if src := item.Source; src != nil {
		dto.Source = &SourceRef{Queue: src.Queue, ItemID: src.ItemID, Seq: src.Seq}
	}
	if d := item.Deepening; len(d.Tried) > 0 || d.StaleRounds > 0 || d.Cycles > 0 {
		dto.Deepening = &Deepening{Tried: d.Tried, StaleRounds: d.StaleRounds, Cycles: d.Cycles}
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// MergeQueueStats normalizes a status count map so every status is present.
func MergeQueueStats(stats queue.Stats) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
