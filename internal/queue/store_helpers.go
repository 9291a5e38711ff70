package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed width so lexical comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const itemColumns = "id, status, lock_owner, lease_expiry, attempts, max_attempts, last_error, failure_kind, status_reason, priority, quality_score, lead_ref, source_queue, source_item_id, source_seq, payload, strategies_tried, stale_rounds, strategy_cycles, available_at, created_at, updated_at, completed_at, settled_by"

// itemColumnNames is the column list CheckHealth expects on every queue table.
var itemColumnNames = strings.Split(strings.ReplaceAll(itemColumns, " ", ""), ",")

func scanItem(queueName string, scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		statusStr    string
		lockOwner    sql.NullString
		leaseRaw     sql.NullString
		attempts     int
		maxAttempts  int
		lastError    sql.NullString
		failureKind  sql.NullString
		statusReason sql.NullString
		priority     int
		qualityScore sql.NullFloat64
		leadRef      sql.NullString
		sourceQueue  sql.NullString
		sourceItemID sql.NullInt64
		sourceSeq    sql.NullInt64
		payload      string
		triedRaw     string
		staleRounds  int
		cycles       int
		availableRaw string
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
		settledBy    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&lockOwner,
		&leaseRaw,
		&attempts,
		&maxAttempts,
		&lastError,
		&failureKind,
		&statusReason,
		&priority,
		&qualityScore,
		&leadRef,
		&sourceQueue,
		&sourceItemID,
		&sourceSeq,
		&payload,
		&triedRaw,
		&staleRounds,
		&cycles,
		&availableRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
		&settledBy,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		Queue:        queueName,
		Status:       Status(statusStr),
		LockOwner:    lockOwner.String,
		SettledBy:    settledBy.String,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		LastError:    lastError.String,
		FailureKind:  FailureKind(failureKind.String),
		StatusReason: statusReason.String,
		Priority:     priority,
		LeadRef:      leadRef.String,
		Payload:      json.RawMessage(payload),
		Deepening:    DeepeningState{StaleRounds: staleRounds, Cycles: cycles},
	}
	if qualityScore.Valid {
		score := qualityScore.Float64
		item.QualityScore = &score
	}
	if sourceQueue.Valid {
		item.Source = &SourceRef{Queue: sourceQueue.String, ItemID: sourceItemID.Int64, Seq: int(sourceSeq.Int64)}
	}
	if triedRaw != "" {
		if err := json.Unmarshal([]byte(triedRaw), &item.Deepening.Tried); err != nil {
			return nil, fmt.Errorf("decode strategies_tried for %s#%d: %w", queueName, id, err)
		}
	}
	item.LeaseExpiry = parseNullableTime(leaseRaw)
	item.CompletedAt = parseNullableTime(completedRaw)
	if t, err := parseTimeString(availableRaw); err == nil {
		item.AvailableAt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = t
	}
	return item, nil
}

func scanItems(queueName string, rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(queueName, rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func encodePayload(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return "", fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if object == nil {
		return "{}", nil
	}
	return string(raw), nil
}

func encodeFields(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode payload fields: %w", err)
	}
	return string(data), nil
}

func encodeStrategies(tried []string) string {
	if len(tried) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(tried)
	return string(data)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func int64sToArgs(values []int64) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
