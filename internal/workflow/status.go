package workflow

import (
	"context"

	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/stage"
)

// StatusSummary is the in-process view of one worker.
type StatusSummary struct {
	Stage      string
	WorkerID   string
	Running    bool
	Processed  int64
	Errors     int64
	LastError  string
	LastItem   string
	QueueStats queue.Stats
	Health     stage.Health
}

// Status returns the worker's counters, queue depth, and handler health.
func (w *Worker) Status(ctx context.Context) StatusSummary {
	w.mu.RLock()
	summary := StatusSummary{
		Stage:    w.stage.Name,
		WorkerID: w.id,
		Running:  w.running,
		LastItem: w.lastItem,
	}
	if w.lastErr != nil {
		summary.LastError = w.lastErr.Error()
	}
	w.mu.RUnlock()

	summary.Processed = w.processed.Load()
	summary.Errors = w.failed.Load()
	stats, err := w.store.Stats(ctx, w.stage.Queue)
	if err != nil {
		w.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	summary.Health = w.stage.Handler.HealthCheck(ctx)
	return summary
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	w.running = running
	w.mu.Unlock()
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Worker) setLastItem(ref string) {
	w.mu.Lock()
	w.lastItem = ref
	w.mu.Unlock()
}
