package supervisor

import (
	"time"

	"smoothbdr/internal/config"
)

// restartPolicy decides how long to wait before restarting an exited worker.
// Exits within window count as rapid: each doubles the delay up to max, and
// more than maxRapid consecutive rapid exits stop restarts altogether.
type restartPolicy struct {
	base     time.Duration
	max      time.Duration
	window   time.Duration
	maxRapid int

	rapid int
	delay time.Duration
}

func newRestartPolicy(cfg *config.Config) restartPolicy {
	return restartPolicy{
		base:     cfg.RestartDelay(),
		max:      cfg.MaxRestartDelay(),
		window:   cfg.RapidExitWindow(),
		maxRapid: cfg.Supervisor.MaxRapidRestarts,
	}
}

// next records an exit after runtime and returns the restart delay, or
// crashLoop when restarts should stop.
func (p *restartPolicy) next(runtime time.Duration) (delay time.Duration, crashLoop bool) {
	if p.window <= 0 || runtime >= p.window {
		p.rapid = 0
		p.delay = p.base
		return p.delay, false
	}
	p.rapid++
	if p.maxRapid > 0 && p.rapid > p.maxRapid {
		return 0, true
	}
	switch {
	case p.delay <= 0:
		p.delay = p.base
	case p.delay < p.max:
		p.delay = min(p.delay*2, p.max)
	}
	return p.delay, false
}

func (p *restartPolicy) reset() {
	p.rapid = 0
	p.delay = 0
}
