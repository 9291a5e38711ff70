package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/services"
)

const finalWriteTimeout = 5 * time.Second

// Worker drives one Stage against the Ledger.
type Worker struct {
	stage     Stage
	store     *queue.Store
	logger    *slog.Logger
	id        string
	heartbeat *Heartbeat

	processed atomic.Int64
	failed    atomic.Int64

	mu       sync.RWMutex
	running  bool
	lastErr  error
	lastItem string
}

// WorkerOption configures optional Worker behavior.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	workerID          string
	heartbeatInterval time.Duration
}

// WithWorkerID sets the lease owner identity. The default is the stage name
// plus a random suffix.
func WithWorkerID(id string) WorkerOption {
	return func(o *workerOptions) { o.workerID = id }
}

// WithHeartbeatInterval overrides the stage's heartbeat interval.
func WithHeartbeatInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) { o.heartbeatInterval = d }
}

// NewWorker constructs a worker for st.
func NewWorker(st Stage, store *queue.Store, logger *slog.Logger, opts ...WorkerOption) (*Worker, error) {
	if st.Handler == nil {
		return nil, fmt.Errorf("stage %s has no handler", st.Name)
	}
	if store == nil {
		return nil, errors.New("worker requires a ledger store")
	}
	if !queue.Valid(st.Queue) {
		return nil, fmt.Errorf("stage %s: %w: %q", st.Name, queue.ErrUnknownQueue, st.Queue)
	}
	if st.BatchSize <= 0 {
		st.BatchSize = 1
	}
	if st.PollInterval <= 0 {
		st.PollInterval = time.Second
	}
	if st.ErrorRetry <= 0 {
		st.ErrorRetry = st.PollInterval
	}

	options := workerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.workerID == "" {
		options.workerID = st.Name + "-" + uuid.NewString()[:8]
	}
	if options.heartbeatInterval <= 0 {
		options.heartbeatInterval = st.HeartbeatInterval
	}

	base := logging.NewComponentLogger(logger, "worker").With(
		logging.String(logging.FieldStage, st.Name),
		logging.String(logging.FieldWorkerID, options.workerID),
	)
	w := &Worker{stage: st, store: store, logger: base, id: options.workerID}
	w.heartbeat = NewHeartbeat(store, base, queue.Heartbeat{
		Name:      st.Name,
		Stage:     st.Name,
		WorkerID:  options.workerID,
		PID:       os.Getpid(),
		StartedAt: store.Now(),
	}, st.Queue, options.heartbeatInterval, st.LeaseTimeout)
	return w, nil
}

// ID returns the lease owner identity.
func (w *Worker) ID() string {
	return w.id
}

// Run loops until ctx is cancelled. Ledger errors are logged and retried; Run
// only returns once the in-flight batch has been settled.
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	hbCtx, stopHeartbeat := context.WithCancel(context.WithoutCancel(ctx))
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		w.heartbeat.Run(hbCtx)
	}()
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
		w.finish()
	}()

	w.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_start"),
		logging.String(logging.FieldQueue, w.stage.Queue),
		logging.Int("batch_size", w.stage.BatchSize),
		logging.Duration("poll_interval", w.stage.PollInterval),
	)

	paused := false
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.heartbeat.Beat(ctx); err != nil && ctx.Err() == nil {
			w.ledgerError("heartbeat write failed", err)
		}

		active, reason, err := w.active(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.ledgerError("failed to read worker flags", err)
			if !sleep(ctx, w.stage.ErrorRetry) {
				return nil
			}
			continue
		}
		if !active {
			if !paused {
				w.logger.Info("worker idle", logging.String(logging.FieldEventType, "worker_paused"), logging.String("reason", reason))
				paused = true
			}
			if !sleep(ctx, w.stage.PollInterval) {
				return nil
			}
			continue
		}
		if paused {
			w.logger.Info("worker resumed", logging.String(logging.FieldEventType, "worker_resumed"))
			paused = false
		}

		n, err := w.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.ledgerError("failed to acquire items", err)
			if !sleep(ctx, w.stage.ErrorRetry) {
				return nil
			}
			continue
		}
		if n == 0 && !sleep(ctx, w.stage.PollInterval) {
			return nil
		}
	}
}

// RunOnce runs a single cycle when the worker is active and returns the
// number of items it settled or attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if err := w.heartbeat.Beat(ctx); err != nil {
		return 0, err
	}
	active, _, err := w.active(ctx)
	if err != nil || !active {
		return 0, err
	}
	return w.cycle(ctx)
}

func (w *Worker) active(ctx context.Context) (bool, string, error) {
	running, err := w.store.SystemRunning(ctx)
	if err != nil {
		return false, "", err
	}
	if !running {
		return false, "system paused", nil
	}
	enabled, err := w.store.WorkerEnabled(ctx, w.stage.Name)
	if err != nil {
		return false, "", err
	}
	if !enabled {
		return false, "worker disabled", nil
	}
	return true, "", nil
}

// cycle leases a batch and processes it. Item processing runs on a context
// detached from ctx so a stop request lets every leased item settle.
func (w *Worker) cycle(ctx context.Context) (int, error) {
	items, err := w.store.AcquireBatch(ctx, w.stage.Queue, w.id, w.stage.acquireOptions(), w.stage.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	workCtx := context.WithoutCancel(ctx)
	refs := make([]string, 0, len(items))
	for _, item := range items {
		refs = append(refs, item.Ref())
		w.heartbeat.Hold(item.ID)
	}
	if err := w.heartbeat.SetCurrent(workCtx, refs...); err != nil {
		w.logger.Debug("current item marker not written", logging.Error(err))
	}

	var processed, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(w.stage.BatchSize)
	for _, item := range items {
		g.Go(func() error {
			defer w.heartbeat.Release(item.ID)
			if w.processItem(workCtx, item) {
				processed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := w.heartbeat.SetCurrent(workCtx); err != nil {
		w.logger.Debug("current item marker not cleared", logging.Error(err))
	}
	if err := w.heartbeat.Count(workCtx, int(processed.Load()), int(failed.Load())); err != nil {
		w.ledgerError("failed to update worker counters", err)
	}
	w.processed.Add(processed.Load())
	w.failed.Add(failed.Load())
	return len(items), nil
}

func (w *Worker) ledgerError(msg string, err error) {
	w.setLastError(err)
	logging.ErrorWithContext(w.logger, msg, "ledger_unavailable",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check ledger database access"),
	)
}

func (w *Worker) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()
	if err := w.heartbeat.SetCurrent(ctx); err != nil {
		w.logger.Debug("current item marker not cleared on exit", logging.Error(err))
	}
	w.logger.Info("worker stopped",
		logging.String(logging.FieldEventType, "worker_stop"),
		logging.Int64("processed", w.processed.Load()),
		logging.Int64("errors", w.failed.Load()),
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func withItemContext(ctx context.Context, st Stage, workerID string, item *queue.Item) context.Context {
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithStage(ctx, st.Name)
	ctx = services.WithQueue(ctx, st.Queue)
	ctx = services.WithWorker(ctx, workerID)
	return services.WithRequestID(ctx, uuid.NewString())
}
