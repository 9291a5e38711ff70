package quality

import (
	"fmt"
	"slices"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

// State is the per-item deepening bookkeeping stored on the Ledger row.
type State = queue.DeepeningState

// Policy bounds how long an item may be deepened.
type Policy struct {
	Strategies []string
	// NoNewDataLimit is the number of consecutive rounds without new data
	// that exhausts an item.
	NoNewDataLimit int
	// MaxCycles is the number of full passes over Strategies allowed before
	// the item is exhausted.
	MaxCycles int
}

// PolicyFromConfig builds a Policy from the [deepening] section.
func PolicyFromConfig(cfg config.Deepening) Policy {
	return Policy{
		Strategies:     append([]string(nil), cfg.Strategies...),
		NoNewDataLimit: cfg.NoNewDataLimit,
		MaxCycles:      cfg.MaxStrategyCycles,
	}
}

func (p Policy) withDefaults() Policy {
	if p.NoNewDataLimit < 1 {
		p.NoNewDataLimit = 1
	}
	if p.MaxCycles < 1 {
		p.MaxCycles = 1
	}
	return p
}

func (p Policy) allTried(tried []string) bool {
	for _, s := range p.Strategies {
		if !slices.Contains(tried, s) {
			return false
		}
	}
	return true
}

// NextStrategy returns the first strategy the item has not tried in the
// current pass.
func NextStrategy(state State, policy Policy) string {
	for _, s := range policy.Strategies {
		if !slices.Contains(state.Tried, s) {
			return s
		}
	}
	if len(policy.Strategies) > 0 {
		return policy.Strategies[0]
	}
	return ""
}

// RoundResult is what one deepening round produced.
type RoundResult struct {
	Strategy string
	// NewData counts facts the round added; zero marks a stale round.
	NewData int
	// Score is the re-computed quality score; nil means the round could not score the item.
	Score  *float64
	Fields map[string]any
}

// DecisionKind is the outcome of one deepening round.
type DecisionKind string

const (
	DecisionAdvance  DecisionKind = "advance"
	DecisionContinue DecisionKind = "continue"
	DecisionExhaust  DecisionKind = "exhaust"
)

// Decision pairs a DecisionKind with the reason recorded on exhaustion.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// Advance folds one round into state and decides what happens next. A score
// that clears the gate advances the item. Otherwise a stale round counts
// toward NoNewDataLimit and a productive round resets that count. Once every
// strategy has been tried the pass ends: the tried set is cleared and the
// cycle count grows until MaxCycles exhausts the item.
func Advance(state State, result RoundResult, gate Gate, policy Policy) (State, Decision) {
	policy = policy.withDefaults()
	next := State{
		Tried:       append([]string(nil), state.Tried...),
		StaleRounds: state.StaleRounds,
		Cycles:      state.Cycles,
	}
	if result.Strategy != "" && !slices.Contains(next.Tried, result.Strategy) {
		next.Tried = append(next.Tried, result.Strategy)
	}

	if result.Score != nil && gate.Decide(*result.Score) == VerdictAdvance {
		return next, Decision{Kind: DecisionAdvance}
	}

	if result.NewData > 0 {
		next.StaleRounds = 0
	} else {
		next.StaleRounds++
		if next.StaleRounds >= policy.NoNewDataLimit {
			return next, Decision{
				Kind:   DecisionExhaust,
				Reason: fmt.Sprintf("no new data after %d consecutive deepening rounds", next.StaleRounds),
			}
		}
	}

	if policy.allTried(next.Tried) {
		next.Tried = nil
		next.Cycles++
		if next.Cycles >= policy.MaxCycles {
			return next, Decision{
				Kind: DecisionExhaust,
				Reason: fmt.Sprintf("all %d strategies retried %d times without reaching quality threshold %.2f",
					len(policy.Strategies), next.Cycles, gate.Threshold),
			}
		}
	}
	return next, Decision{Kind: DecisionContinue}
}
