package handlers

import (
	"encoding/json"
	"time"

	"smoothbdr/internal/queue"
)

// itemEnvelope is the item as an external command sees it.
type itemEnvelope struct {
	ID           int64           `json:"id"`
	Queue        string          `json:"queue"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	LeadRef      string          `json:"lead_ref,omitempty"`
	Priority     int             `json:"priority"`
	QualityScore *float64        `json:"quality_score,omitempty"`
	Source       *sourceEnvelope `json:"source,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

type sourceEnvelope struct {
	Queue  string `json:"queue"`
	ItemID int64  `json:"item_id"`
	Seq    int    `json:"seq"`
}

// request is written to the command's stdin.
type request struct {
	Stage    string       `json:"stage"`
	Strategy string       `json:"strategy,omitempty"`
	Origin   string       `json:"origin,omitempty"`
	Item     itemEnvelope `json:"item"`
}

// response is read from the command's stdout.
type response struct {
	Outcome string            `json:"outcome"`
	Score   *float64          `json:"score"`
	Next    []json.RawMessage `json:"next"`
	Fields  map[string]any    `json:"fields"`
	Reason  string            `json:"reason"`
	NewData int               `json:"new_data"`
}

const outcomeInvalid = "invalid"

func envelopeFor(item *queue.Item) itemEnvelope {
	env := itemEnvelope{
		ID:           item.ID,
		Queue:        item.Queue,
		Attempts:     item.Attempts,
		MaxAttempts:  item.MaxAttempts,
		LeadRef:      item.LeadRef,
		Priority:     item.Priority,
		QualityScore: item.QualityScore,
		Payload:      item.Payload,
		CreatedAt:    item.CreatedAt,
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage(`{}`)
	}
	if item.Source != nil {
		env.Source = &sourceEnvelope{Queue: item.Source.Queue, ItemID: item.Source.ItemID, Seq: item.Source.Seq}
	}
	return env
}
