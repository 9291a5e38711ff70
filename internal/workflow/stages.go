package workflow

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"smoothbdr/internal/config"
	"smoothbdr/internal/handlers"
	"smoothbdr/internal/quality"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/stage"
)

// Route is a queue that advanced items are written to.
type Route struct {
	Queue string
	// Hold inserts items as awaiting_approval instead of pending.
	Hold        bool
	MaxAttempts int
}

// Stage binds a queue to its handler and its downstream routes.
type Stage struct {
	Name  string
	Queue string
	// Next receives advanced items. A zero Route marks a terminal stage.
	Next Route
	// OriginRoutes replaces Next for stages that route by the queue an item
	// originally came from.
	OriginRoutes map[string]Route
	// Gate, when set, classifies advanced items by score.
	Gate         *quality.Gate
	DefaultScore float64
	// Deepening receives items the gate classified as low quality.
	Deepening Route
	// FinalizeOrigin settles the low-quality origin item when this stage
	// advances or exhausts its copy.
	FinalizeOrigin bool

	Order        queue.Order
	LeaseTimeout time.Duration
	PollInterval time.Duration
	ErrorRetry   time.Duration
	RetryDelay   time.Duration
	BatchSize    int

	// HeartbeatInterval paces the worker record and lease renewal while
	// items are in flight.
	HeartbeatInterval time.Duration

	Handler stage.Handler
}

func route(cfg *config.Config, name string) Route {
	settings := cfg.StageSettings(name)
	return Route{Queue: name, Hold: settings.RequireApproval, MaxAttempts: settings.MaxAttempts}
}

// DefaultPipeline returns every stage definition without handlers:
// discovery → research → draft → delivery, with research and draft gated
// into deepening, and reply running on its own.
func DefaultPipeline(cfg *config.Config) ([]Stage, error) {
	next := map[string]string{
		config.StageDiscovery: config.StageResearch,
		config.StageResearch:  config.StageDraft,
		config.StageDraft:     config.StageDelivery,
	}

	stages := make([]Stage, 0, len(config.StageNames))
	for _, name := range config.StageNames {
		settings := cfg.StageSettings(name)
		order, err := queue.ParseOrder(settings.Order)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
		st := Stage{
			Name:         name,
			Queue:        name,
			DefaultScore: settings.DefaultScore,
			Order:        order,
			LeaseTimeout: settings.LeaseTimeout,
			PollInterval: settings.PollInterval,
			ErrorRetry:   cfg.ErrorRetryInterval(),
			RetryDelay:   settings.RetryDelay,
			BatchSize:    settings.BatchSize,

			HeartbeatInterval: cfg.HeartbeatInterval(),
		}
		if n, ok := next[name]; ok {
			st.Next = route(cfg, n)
		}
		if slices.Contains(config.GatedStages, name) && settings.QualityThreshold > 0 {
			st.Gate = &quality.Gate{Threshold: settings.QualityThreshold}
			st.Deepening = route(cfg, config.StageDeepening)
		}
		if name == config.StageDeepening {
			st.OriginRoutes = make(map[string]Route, len(config.GatedStages))
			for _, origin := range config.GatedStages {
				st.OriginRoutes[origin] = route(cfg, next[origin])
			}
			st.FinalizeOrigin = true
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// StageFor returns the named stage with its configured handler attached.
func StageFor(cfg *config.Config, name string, logger *slog.Logger) (Stage, error) {
	stages, err := DefaultPipeline(cfg)
	if err != nil {
		return Stage{}, err
	}
	for _, st := range stages {
		if st.Name != name {
			continue
		}
		handler, err := handlers.Build(cfg, name, logger)
		if err != nil {
			return Stage{}, err
		}
		st.Handler = handler
		return st, nil
	}
	return Stage{}, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) acquireOptions() queue.AcquireOptions {
	return queue.AcquireOptions{Order: s.Order, LeaseTimeout: s.LeaseTimeout}
}

func (s Stage) routeFor(item *queue.Item) (Route, error) {
	if s.OriginRoutes == nil {
		return s.Next, nil
	}
	if item.Source == nil {
		return Route{}, fmt.Errorf("%s has no origin to route by", item.Ref())
	}
	r, ok := s.OriginRoutes[item.Source.Queue]
	if !ok {
		return Route{}, fmt.Errorf("%s: no route for origin queue %q", item.Ref(), item.Source.Queue)
	}
	return r, nil
}
