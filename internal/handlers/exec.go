package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smoothbdr/internal/deps"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/quality"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/services"
	"smoothbdr/internal/stage"
)

// Exec runs an external command for each item.
type Exec struct {
	stage   string
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExec builds an Exec handler for stageName.
func NewExec(stageName string, command []string, timeout time.Duration, logger *slog.Logger) *Exec {
	return &Exec{
		stage:   stageName,
		command: append([]string(nil), command...),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "exec-handler"),
	}
}

// Process runs the command and maps its reply onto an Outcome.
func (e *Exec) Process(ctx context.Context, item *queue.Item) (stage.Outcome, error) {
	start := time.Now()
	resp, err := runCommand(ctx, e.stage, e.command, e.timeout, request{Stage: e.stage, Item: envelopeFor(item)})
	if err != nil {
		return stage.Outcome{}, err
	}
	logging.WithContext(ctx, e.logger).Debug("stage command finished",
		logging.String("command", e.command[0]),
		logging.String("outcome", resp.Outcome),
		logging.Duration("duration", time.Since(start)),
	)

	if resp.Outcome == "" {
		resp.Outcome = string(stage.KindAdvance)
	}
	kind, err := stage.ParseKind(resp.Outcome)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrTransient, e.stage, "decode response", "unrecognized outcome", err)
	}
	if kind == stage.KindContinue {
		return stage.Outcome{}, services.Wrap(services.ErrTransient, e.stage, "decode response",
			fmt.Sprintf("outcome %q is reserved for the deepening stage", kind), nil)
	}
	return stage.Outcome{
		Kind:   kind,
		Next:   resp.Next,
		Fields: resp.Fields,
		Score:  resp.Score,
		Reason: strings.TrimSpace(resp.Reason),
	}, nil
}

// HealthCheck verifies the command resolves.
func (e *Exec) HealthCheck(context.Context) stage.Health {
	return commandHealth(e.stage, e.command)
}

// RunStrategy implements quality.Runner by invoking the command with the
// strategy and origin alongside the item.
func (e *Exec) RunStrategy(ctx context.Context, round quality.Round) (quality.RoundResult, error) {
	resp, err := runCommand(ctx, e.stage, e.command, e.timeout, request{
		Stage:    e.stage,
		Strategy: round.Strategy,
		Origin:   round.Origin,
		Item:     envelopeFor(round.Item),
	})
	if err != nil {
		return quality.RoundResult{}, err
	}
	return quality.RoundResult{
		Strategy: round.Strategy,
		NewData:  resp.NewData,
		Score:    resp.Score,
		Fields:   resp.Fields,
	}, nil
}

func commandHealth(name string, command []string) stage.Health {
	if len(command) == 0 {
		return stage.Unhealthy(name, "no command configured")
	}
	status := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: command[0]}})[0]
	if !status.Available {
		return stage.Unhealthy(name, status.Detail)
	}
	return stage.Healthy(name)
}
