package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID           int64           `json:"id"`
	Queue        string          `json:"queue"`
	Status       string          `json:"status"`
	LeadRef      string          `json:"lead_ref,omitempty"`
	Priority     int             `json:"priority"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	LockOwner    string          `json:"lock_owner,omitempty"`
	LeaseExpiry  string          `json:"lease_expiry,omitempty"`
	QualityScore *float64        `json:"quality_score,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	FailureKind  string          `json:"failure_kind,omitempty"`
	StatusReason string          `json:"status_reason,omitempty"`
	Source       *SourceRef      `json:"source,omitempty"`
	Deepening    *Deepening      `json:"deepening,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	AvailableAt  string          `json:"available_at,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}

// SourceRef names the upstream item a row was derived from.
type SourceRef struct {
	Queue  string `json:"queue"`
	ItemID int64  `json:"item_id"`
	Seq    int    `json:"seq"`
}

// Deepening mirrors the strategy bookkeeping of a deepening item.
type Deepening struct {
	Tried       []string `json:"strategies_tried"`
	StaleRounds int      `json:"stale_rounds"`
	Cycles      int      `json:"cycles"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// QueueStatsResponse carries per-status counts keyed by queue name.
type QueueStatsResponse struct {
	Queues map[string]map[string]int `json:"queues"`
}

// LeadRequest submits a new item to the top of the pipeline.
type LeadRequest struct {
	LeadRef  string          `json:"lead_ref,omitempty"`
	Priority int             `json:"priority,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// LeadResponse reports the discovery item created for a lead.
type LeadResponse struct {
	Item QueueItem `json:"item"`
}

// RetryRequest limits a retry to specific ids; empty retries every failed item.
type RetryRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// RetryResponse reports how many failed items were reset.
type RetryResponse struct {
	Queue   string `json:"queue"`
	Retried int64  `json:"retried"`
}

// ToggleResponse acknowledges a worker or system toggle.
type ToggleResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
