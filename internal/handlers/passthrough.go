package handlers

import (
	"context"

	"smoothbdr/internal/quality"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/stage"
)

// Passthrough advances every item unchanged with a fixed score.
type Passthrough struct {
	stage string
	score float64
}

// NewPassthrough builds a Passthrough handler.
func NewPassthrough(stageName string, score float64) *Passthrough {
	return &Passthrough{stage: stageName, score: score}
}

// Process advances the item.
func (p *Passthrough) Process(context.Context, *queue.Item) (stage.Outcome, error) {
	return stage.Advance(nil).WithScore(p.score), nil
}

// HealthCheck always reports ready.
func (p *Passthrough) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(p.stage)
}

// RunStrategy implements quality.Runner for a deepening stage with no
// command: the round adds nothing, so the item exhausts once the stale limit
// is reached.
func (p *Passthrough) RunStrategy(_ context.Context, round quality.Round) (quality.RoundResult, error) {
	return quality.RoundResult{Strategy: round.Strategy}, nil
}
