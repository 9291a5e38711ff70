package stage

import (
	"encoding/json"
	"fmt"

	"smoothbdr/internal/queue"
)

// Kind names the result a handler reports for an item.
type Kind string

const (
	// KindAdvance sends the item forward, subject to the stage's quality gate.
	KindAdvance Kind = "advance"
	// KindRequeue returns the item to pending and counts an attempt.
	KindRequeue Kind = "requeue"
	// KindSkip settles the item as skipped.
	KindSkip Kind = "skip"
	// KindExhaust settles the item as exhausted; no further work will help.
	KindExhaust Kind = "exhaust"
	// KindContinue returns the item to pending with updated deepening state
	// and no attempt charged.
	KindContinue Kind = "continue"
)

// ParseKind maps a wire value onto a Kind.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(value); k {
	case KindAdvance, KindRequeue, KindSkip, KindExhaust, KindContinue:
		return k, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", value)
	}
}

// Outcome is what a handler reports for one item.
type Outcome struct {
	Kind Kind
	// Next holds the downstream payloads. An Advance with no Next forwards the
	// item's own payload merged with Fields.
	Next []json.RawMessage
	// Fields are merged into the item's stored payload.
	Fields map[string]any
	// Score is the computed quality score; nil leaves the gate to the stage default.
	Score  *float64
	Reason string
	// Deepening carries strategy bookkeeping for KindContinue.
	Deepening *queue.DeepeningState
}

// Advance builds an advance outcome.
func Advance(fields map[string]any, next ...json.RawMessage) Outcome {
	return Outcome{Kind: KindAdvance, Fields: fields, Next: next}
}

// Requeue builds a requeue outcome.
func Requeue(reason string) Outcome {
	return Outcome{Kind: KindRequeue, Reason: reason}
}

// Skip builds a skip outcome.
func Skip(reason string) Outcome {
	return Outcome{Kind: KindSkip, Reason: reason}
}

// Exhaust builds an exhaust outcome.
func Exhaust(reason string) Outcome {
	return Outcome{Kind: KindExhaust, Reason: reason}
}

// Continue builds a continue outcome carrying the next deepening state.
func Continue(state queue.DeepeningState, fields map[string]any) Outcome {
	return Outcome{Kind: KindContinue, Deepening: &state, Fields: fields}
}

// WithScore returns a copy of o carrying score.
func (o Outcome) WithScore(score float64) Outcome {
	o.Score = &score
	return o
}

// ScoreOr returns the reported score or fallback when none was reported.
func (o Outcome) ScoreOr(fallback float64) float64 {
	if o.Score == nil {
		return fallback
	}
	return *o.Score
}
