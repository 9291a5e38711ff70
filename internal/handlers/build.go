package handlers

import (
	"fmt"
	"log/slog"
	"slices"

	"smoothbdr/internal/config"
	"smoothbdr/internal/quality"
	"smoothbdr/internal/stage"
)

// Build returns the handler configured for the named stage.
func Build(cfg *config.Config, name string, logger *slog.Logger) (stage.Handler, error) {
	if !slices.Contains(config.StageNames, name) {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	if name == config.StageDeepening {
		return buildDeepening(cfg, logger), nil
	}
	settings := cfg.StageSettings(name)
	if len(settings.Command) == 0 {
		return NewPassthrough(name, settings.DefaultScore), nil
	}
	return NewExec(name, settings.Command, settings.Timeout, logger), nil
}

func buildDeepening(cfg *config.Config, logger *slog.Logger) *quality.DeepeningHandler {
	settings := cfg.StageSettings(config.StageDeepening)
	var runner quality.Runner
	if len(settings.Command) == 0 {
		runner = NewPassthrough(config.StageDeepening, settings.DefaultScore)
	} else {
		runner = NewExec(config.StageDeepening, settings.Command, settings.Timeout, logger)
	}
	gates := make(map[string]quality.Gate, len(config.GatedStages))
	runners := make(map[string]quality.Runner, len(config.GatedStages))
	for _, origin := range config.GatedStages {
		gates[origin] = quality.Gate{Threshold: cfg.StageSettings(origin).QualityThreshold}
		runners[origin] = runner
	}
	return quality.NewDeepeningHandler(quality.PolicyFromConfig(cfg.Deepening), gates, runners, logger)
}
