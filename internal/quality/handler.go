package quality

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/services"
	"smoothbdr/internal/stage"
)

// Round is the input to one deepening attempt.
type Round struct {
	Strategy string
	// Origin is the queue the item scored too low in.
	Origin string
	Item   *queue.Item
}

// Runner re-attempts a stage with a given strategy.
type Runner interface {
	RunStrategy(ctx context.Context, round Round) (RoundResult, error)
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, round Round) (RoundResult, error)

// RunStrategy calls f.
func (f RunnerFunc) RunStrategy(ctx context.Context, round Round) (RoundResult, error) {
	return f(ctx, round)
}

// DeepeningHandler consumes the deepening queue. Each Process call runs one
// strategy round and reports Advance, Continue, or Exhaust; the worker routes
// advanced items to the origin stage's next queue and settles the origin item.
type DeepeningHandler struct {
	policy  Policy
	gates   map[string]Gate
	runners map[string]Runner
	logger  *slog.Logger
}

// NewDeepeningHandler builds a handler. gates and runners are keyed by origin queue.
func NewDeepeningHandler(policy Policy, gates map[string]Gate, runners map[string]Runner, logger *slog.Logger) *DeepeningHandler {
	return &DeepeningHandler{
		policy:  policy,
		gates:   gates,
		runners: runners,
		logger:  logging.NewComponentLogger(logger, "deepening"),
	}
}

// Process runs the next strategy for item.
func (h *DeepeningHandler) Process(ctx context.Context, item *queue.Item) (stage.Outcome, error) {
	if item.Source == nil {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, config.StageDeepening, "resolve origin",
			"deepening item has no origin reference", nil)
	}
	origin := item.Source.Queue
	gate, ok := h.gates[origin]
	if !ok {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, config.StageDeepening, "resolve origin",
			fmt.Sprintf("no quality gate configured for origin %q", origin), nil)
	}
	runner, ok := h.runners[origin]
	if !ok {
		return stage.Outcome{}, services.Wrap(services.ErrConfiguration, config.StageDeepening, "resolve runner",
			fmt.Sprintf("no deepening runner configured for origin %q", origin), nil)
	}

	strategy := NextStrategy(item.Deepening, h.policy)
	result, err := runner.RunStrategy(ctx, Round{Strategy: strategy, Origin: origin, Item: item})
	if err != nil {
		return stage.Outcome{}, err
	}
	if result.Strategy == "" {
		result.Strategy = strategy
	}
	if result.Score == nil {
		result.Score = item.QualityScore
	}

	state, decision := Advance(item.Deepening, result, gate, h.policy)
	logging.WithContext(ctx, h.logger).Debug("deepening round finished",
		logging.String("strategy", result.Strategy),
		logging.Int("new_data", result.NewData),
		logging.Int("stale_rounds", state.StaleRounds),
		logging.Int("cycles", state.Cycles),
		logging.String("decision", string(decision.Kind)),
	)

	var out stage.Outcome
	switch decision.Kind {
	case DecisionAdvance:
		out = stage.Advance(result.Fields)
	case DecisionExhaust:
		out = stage.Exhaust(decision.Reason)
		out.Fields = result.Fields
	default:
		out = stage.Continue(state, result.Fields)
	}
	out.Deepening = &state
	out.Score = result.Score
	return out, nil
}

// HealthCheck reports whether strategies are configured and every runner is ready.
func (h *DeepeningHandler) HealthCheck(ctx context.Context) stage.Health {
	if len(h.policy.Strategies) == 0 {
		return stage.Unhealthy(config.StageDeepening, "no deepening strategies configured")
	}
	parts := make([]stage.Health, 0, len(h.runners))
	for origin, runner := range h.runners {
		checker, ok := runner.(interface {
			HealthCheck(context.Context) stage.Health
		})
		if !ok {
			continue
		}
		health := checker.HealthCheck(ctx)
		health.Name = origin
		parts = append(parts, health)
	}
	slices.SortFunc(parts, func(a, b stage.Health) int { return strings.Compare(a.Name, b.Name) })
	return stage.Merge(config.StageDeepening, parts...)
}
