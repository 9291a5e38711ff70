package supervisor

import (
	"context"
	"time"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

// WorkerHealth classifies one worker by the age of its last heartbeat.
type WorkerHealth string

const (
	WorkerHealthy WorkerHealth = "healthy"
	WorkerStale   WorkerHealth = "stale"
	WorkerStopped WorkerHealth = "stopped"
)

// SystemHealth classifies the pipeline as a whole.
type SystemHealth string

const (
	SystemHealthy    SystemHealth = "healthy"
	SystemBacklogged SystemHealth = "backlogged"
	SystemCritical   SystemHealth = "critical"
	SystemStalled    SystemHealth = "stalled"
	SystemUnknown    SystemHealth = "unknown"
)

// Thresholds are the configurable limits used to classify health.
type Thresholds struct {
	Stale           time.Duration
	BacklogWarn     int
	BacklogCritical int
}

// ThresholdsFromConfig reads the stale threshold and backlog limits.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Stale:           cfg.StaleThreshold(),
		BacklogWarn:     cfg.Supervisor.BacklogWarn,
		BacklogCritical: cfg.Supervisor.BacklogCritical,
	}
}

// WorkerStatus is one row of a Snapshot.
type WorkerStatus struct {
	Name          string         `json:"name"`
	Enabled       bool           `json:"enabled"`
	Health        WorkerHealth   `json:"health"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	HeartbeatAge  float64        `json:"heartbeat_age_seconds,omitempty"`
	WorkerID      string         `json:"worker_id,omitempty"`
	Processed     int64          `json:"processed"`
	Errors        int64          `json:"errors"`
	CurrentItem   string         `json:"current_item,omitempty"`
	Process       *ProcessStatus `json:"process,omitempty"`
}

// Snapshot is the aggregated view of queue depths and worker health.
type Snapshot struct {
	TakenAt       time.Time              `json:"taken_at"`
	Health        SystemHealth           `json:"health"`
	SystemRunning bool                   `json:"system_running"`
	Backlog       int                    `json:"backlog"`
	Queues        map[string]queue.Stats `json:"queues,omitempty"`
	Workers       []WorkerStatus         `json:"workers,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// Worker returns the named worker row.
func (s Snapshot) Worker(name string) (WorkerStatus, bool) {
	for _, w := range s.Workers {
		if w.Name == name {
			return w, true
		}
	}
	return WorkerStatus{}, false
}

// Collect reads the Ledger and classifies every stage worker. A Ledger that
// cannot be read yields SystemUnknown with no worker or queue data.
func Collect(ctx context.Context, store *queue.Store, th Thresholds) Snapshot {
	now := store.Now()
	snap := Snapshot{TakenAt: now}
	fail := func(err error) Snapshot {
		return Snapshot{TakenAt: now, Health: SystemUnknown, Error: err.Error()}
	}

	running, err := store.SystemRunning(ctx)
	if err != nil {
		return fail(err)
	}
	snap.SystemRunning = running

	depths, err := store.Depths(ctx)
	if err != nil {
		return fail(err)
	}
	snap.Queues = depths
	for _, stats := range depths {
		snap.Backlog += stats.Backlog()
	}

	records, err := store.Workers(ctx)
	if err != nil {
		return fail(err)
	}
	byName := make(map[string]queue.WorkerRecord, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	healthy := 0
	for _, name := range config.StageNames {
		status := WorkerStatus{Name: name, Enabled: true, Health: WorkerStopped}
		if rec, ok := byName[name]; ok {
			status.Enabled = rec.Enabled
			status.LastHeartbeat = rec.LastHeartbeat
			status.WorkerID = rec.WorkerID
			status.Processed = rec.ProcessedCount
			status.Errors = rec.ErrorCount
			status.CurrentItem = rec.CurrentItemRef
			status.Health = classifyWorker(rec.LastHeartbeat, now, th.Stale)
			if rec.LastHeartbeat != nil {
				status.HeartbeatAge = now.Sub(*rec.LastHeartbeat).Seconds()
			}
		}
		if status.Health == WorkerHealthy {
			healthy++
		}
		snap.Workers = append(snap.Workers, status)
	}
	snap.Health = classifySystem(snap.Backlog, healthy, th)
	return snap
}

func classifyWorker(lastHeartbeat *time.Time, now time.Time, stale time.Duration) WorkerHealth {
	if lastHeartbeat == nil {
		return WorkerStopped
	}
	if now.Sub(*lastHeartbeat) > stale {
		return WorkerStale
	}
	return WorkerHealthy
}

func classifySystem(backlog, healthyWorkers int, th Thresholds) SystemHealth {
	switch {
	case backlog > 0 && healthyWorkers == 0:
		return SystemStalled
	case th.BacklogCritical > 0 && backlog >= th.BacklogCritical:
		return SystemCritical
	case th.BacklogWarn > 0 && backlog >= th.BacklogWarn:
		return SystemBacklogged
	default:
		return SystemHealthy
	}
}
