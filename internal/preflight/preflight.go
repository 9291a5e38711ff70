package preflight

import (
	"context"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// LedgerChecker is the diagnostic surface of the Ledger store.
type LedgerChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// RunAll executes every applicable check. A nil ledger skips the Ledger check.
func RunAll(ctx context.Context, cfg *config.Config, ledger LedgerChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if ledger != nil {
		results = append(results, CheckLedger(ctx, ledger))
	}
	results = append(results, CheckStageCommands(cfg)...)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
