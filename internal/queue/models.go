package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusSkipped          Status = "skipped"
	StatusLowQuality       Status = "low_quality"
	StatusExhausted        Status = "exhausted"
	StatusAwaitingApproval Status = "awaiting_approval"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
	StatusLowQuality,
	StatusExhausted,
	StatusAwaitingApproval,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusSkipped:   {},
	StatusExhausted: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no worker will ever pick the item up again
// without operator action.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// FailureKind classifies the last failure recorded on an item.
type FailureKind string

const (
	FailureTransient  FailureKind = "transient"
	FailureValidation FailureKind = "validation"
	FailureRequeue    FailureKind = "requeue"
)

// Order selects which claimable item Acquire hands out first.
type Order string

const (
	OrderCreated  Order = "created"
	OrderPriority Order = "priority"
	OrderQuality  Order = "quality"
)

// ParseOrder maps a configuration value onto an Order, defaulting to creation time.
func ParseOrder(value string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(value))) {
	case "", OrderCreated:
		return OrderCreated, nil
	case OrderPriority:
		return OrderPriority, nil
	case OrderQuality:
		return OrderQuality, nil
	default:
		return "", fmt.Errorf("unknown order policy %q", value)
	}
}

// SourceRef identifies the upstream item a downstream item was derived from.
// Seq distinguishes several outputs of the same source item.
type SourceRef struct {
	Queue  string
	ItemID int64
	Seq    int
}

// DeepeningState is the per-item strategy bookkeeping used by the deepening stage.
type DeepeningState struct {
	Tried       []string
	StaleRounds int
	Cycles      int
}

// Item represents one row of a queue table.
type Item struct {
	ID           int64
	Queue        string
	Status       Status
	LockOwner    string
	// SettledBy is the owner whose Complete produced the current status.
	SettledBy    string
	LeaseExpiry  *time.Time
	Attempts     int
	MaxAttempts  int
	LastError    string
	FailureKind  FailureKind
	StatusReason string
	Priority     int
	QualityScore *float64
	LeadRef      string
	Source       *SourceRef
	Payload      json.RawMessage
	Deepening    DeepeningState
	AvailableAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Ref returns the "<queue>#<id>" form used for current-item markers and logs.
func (i Item) Ref() string {
	return fmt.Sprintf("%s#%d", i.Queue, i.ID)
}

// DecodePayload unmarshals the opaque stage payload into v.
func (i Item) DecodePayload(v any) error {
	if len(i.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(i.Payload, v)
}

// NewItem describes an item to insert with Enqueue.
type NewItem struct {
	LeadRef      string
	Payload      json.RawMessage
	Priority     int
	MaxAttempts  int
	QualityScore *float64
	Source       *SourceRef
	Deepening    DeepeningState
	// Status defaults to pending; awaiting_approval holds the item until Approve.
	Status Status
}

// AcquireOptions tunes a single Acquire call.
type AcquireOptions struct {
	Order        Order
	LeaseTimeout time.Duration
	// ClaimStatus is the non-leased status eligible for claiming. Defaults to pending.
	ClaimStatus Status
}

// Completion settles a leased item.
type Completion struct {
	Status Status
	// Owner, when set, guards the update: only the current lease holder may settle.
	Owner string
	// From, when set, requires the item to currently be in this status.
	From   Status
	Fields map[string]any
	Score  *float64
	Reason string
	// Deepening replaces the stored strategy bookkeeping when non-nil.
	Deepening *DeepeningState
}

// FailRequest records a failed attempt.
type FailRequest struct {
	Owner   string
	Message string
	// MaxAttempts overrides the item's stored cap when positive.
	MaxAttempts int
	Kind        FailureKind
	// RetryDelay postpones re-acquisition when the item returns to pending.
	RetryDelay time.Duration
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	LeadRef  string
	Limit    int
}

// Stats counts items per status for one queue.
type Stats map[Status]int

// Backlog is the work a queue still owes: pending plus in-flight items.
func (s Stats) Backlog() int {
	return s[StatusPending] + s[StatusProcessing]
}

// Total sums every status.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// WorkerRecord is the liveness and throughput row for one named worker.
type WorkerRecord struct {
	Name           string
	Stage          string
	Enabled        bool
	LastHeartbeat  *time.Time
	ProcessedCount int64
	ErrorCount     int64
	StartedAt      *time.Time
	CurrentItemRef string
	WorkerID       string
	PID            int
}

// Heartbeat is what a worker reports on every cycle.
type Heartbeat struct {
	Name      string
	Stage     string
	WorkerID  string
	PID       int
	StartedAt time.Time
}

// DatabaseHealth captures diagnostic information about the Ledger database.
type DatabaseHealth struct {
	Driver           string
	Location         string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	MissingTables    []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary aggregates counts across every queue.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
	Exhausted  int
}
