package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"smoothbdr/internal/config"
	"smoothbdr/internal/deps"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
)

// ErrAlreadyRunning is returned by Run when another supervisor holds the lock.
var ErrAlreadyRunning = errors.New("another supervisor instance is already running")

// ErrUnknownStage is returned for worker names outside the stage list.
var ErrUnknownStage = errors.New("unknown stage")

// CommandFunc builds the command that runs the worker for a stage.
type CommandFunc func(stage string) *exec.Cmd

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommand replaces how worker processes are started.
func WithCommand(fn CommandFunc) Option {
	return func(s *Supervisor) { s.command = fn }
}

// WithConfigPath records the config file passed to workers and watched for
// changes.
func WithConfigPath(path string) Option {
	return func(s *Supervisor) { s.configPath = path }
}

// Supervisor owns the worker processes of one pipeline.
type Supervisor struct {
	store      *queue.Store
	logger     *slog.Logger
	configPath string
	command    CommandFunc

	mu       sync.Mutex
	cfg      *config.Config
	workers  map[string]*managed
	stopping bool
	exits    sync.WaitGroup
}

// New constructs a supervisor. Worker processes re-execute the running
// binary unless WithCommand is given.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Supervisor, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("supervisor requires config and ledger store")
	}
	s := &Supervisor{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "supervisor"),
		workers: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.command == nil {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		s.command = selfCommand(exe, s.configPath)
	}
	return s, nil
}

func selfCommand(exe, configPath string) CommandFunc {
	return func(stage string) *exec.Cmd {
		args := []string{"worker", "--stage", stage}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return exec.Command(exe, args...) //nolint:gosec
	}
}

func (s *Supervisor) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run starts a worker for every enabled stage and keeps them running until
// ctx is cancelled. On return every worker process has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	release, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	cfg := s.config()
	s.logDependencies(cfg)
	for _, name := range cfg.EnabledStages() {
		if err := s.store.EnsureWorker(ctx, name, name, true); err != nil {
			return fmt.Errorf("seed worker record %s: %w", name, err)
		}
		if err := s.StartWorker(name); err != nil {
			logging.ErrorWithContext(s.logger, "worker failed to start", "worker_spawn_failed",
				logging.String(logging.FieldStage, name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the smoothbdr binary is executable"),
			)
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Supervisor.HealthSchedule, func() { s.report(ctx) }); err != nil {
		s.shutdown()
		return fmt.Errorf("schedule health report: %w", err)
	}
	scheduler.Start()

	var watchers sync.WaitGroup
	if cfg.Supervisor.WatchConfig {
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			s.watchConfig(ctx)
		}()
	}

	s.logger.Info("supervisor started",
		logging.String(logging.FieldEventType, "supervisor_start"),
		logging.Int("workers", len(cfg.EnabledStages())),
		logging.String("health_schedule", cfg.Supervisor.HealthSchedule),
	)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	watchers.Wait()
	s.shutdown()
	s.logger.Info("supervisor stopped", logging.String(logging.FieldEventType, "supervisor_stop"))
	return nil
}

// StartWorker starts the stage's worker process if it is not running. It
// also clears a crash-loop state.
func (s *Supervisor) StartWorker(name string) error {
	if !slices.Contains(config.StageNames, name) {
		return fmt.Errorf("%w %q", ErrUnknownStage, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return errors.New("supervisor is shutting down")
	}
	m := s.managedLocked(name)
	if m.state == ProcessRunning {
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.policy.reset()
	return s.spawnLocked(m)
}

// StopWorker terminates the stage's worker process. A deliberately stopped
// worker is never restarted.
func (s *Supervisor) StopWorker(name string) error {
	if !slices.Contains(config.StageNames, name) {
		return fmt.Errorf("%w %q", ErrUnknownStage, name)
	}
	s.mu.Lock()
	m, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.state != ProcessRunning {
		m.state = ProcessStopped
		s.mu.Unlock()
		return nil
	}
	m.stopReq = true
	pid, done := m.pid, m.done
	timeout := s.cfg.ShutdownTimeout()
	s.mu.Unlock()

	if terminate(pid, done, timeout) {
		logging.WarnWithContext(s.logger, "worker killed after shutdown timeout", "worker_killed",
			logging.String(logging.FieldStage, name),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "raise supervisor.shutdown_timeout if items need longer to settle"),
			logging.String(logging.FieldImpact, "the in-flight item is reclaimed after its lease expires"),
		)
	}
	return nil
}

// Restart stops and starts the stage's worker, clearing any crash-loop state.
func (s *Supervisor) Restart(name string) error {
	if err := s.StopWorker(name); err != nil {
		return err
	}
	return s.StartWorker(name)
}

// SetWorkerEnabled flips the Ledger flag the worker loop checks every cycle.
// Enabling a crash-looping worker starts it again.
func (s *Supervisor) SetWorkerEnabled(ctx context.Context, name string, enabled bool) error {
	if !slices.Contains(config.StageNames, name) {
		return fmt.Errorf("%w %q", ErrUnknownStage, name)
	}
	if err := s.store.SetWorkerEnabled(ctx, name, enabled); err != nil {
		return err
	}
	s.logger.Info("worker flag changed",
		logging.String(logging.FieldEventType, "worker_toggle"),
		logging.String(logging.FieldStage, name),
		logging.Bool("enabled", enabled),
	)
	if !enabled {
		return nil
	}
	if st, ok := s.Process(name); ok && st.State == ProcessCrashLooping {
		return s.StartWorker(name)
	}
	return nil
}

// SetSystemRunning pauses or resumes every worker loop.
func (s *Supervisor) SetSystemRunning(ctx context.Context, running bool) error {
	if err := s.store.SetSystemRunning(ctx, running); err != nil {
		return err
	}
	s.logger.Info("system flag changed",
		logging.String(logging.FieldEventType, "system_toggle"),
		logging.Bool("running", running),
	)
	return nil
}

// Process reports the supervised process for a stage.
func (s *Supervisor) Process(name string) (ProcessStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.workers[name]
	if !ok {
		return ProcessStatus{}, false
	}
	return m.status(), true
}

// Snapshot collects Ledger health and attaches process state and resource
// usage for supervised workers.
func (s *Supervisor) Snapshot(ctx context.Context) Snapshot {
	snap := Collect(ctx, s.store, ThresholdsFromConfig(s.config()))
	for i := range snap.Workers {
		st, ok := s.Process(snap.Workers[i].Name)
		if !ok {
			continue
		}
		sampleResources(ctx, &st)
		snap.Workers[i].Process = &st
	}
	return snap
}

func (s *Supervisor) managedLocked(name string) *managed {
	m, ok := s.workers[name]
	if !ok {
		m = &managed{name: name, state: ProcessStopped, policy: newRestartPolicy(s.cfg)}
		s.workers[name] = m
	}
	return m
}

func (s *Supervisor) spawnLocked(m *managed) error {
	cmd := s.command(m.name)
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		m.state = ProcessStopped
		m.lastExit = err.Error()
		return fmt.Errorf("start worker %s: %w", m.name, err)
	}

	done := make(chan struct{})
	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.started = time.Now()
	m.done = done
	m.stopReq = false
	m.state = ProcessRunning
	s.exits.Add(1)
	go s.wait(m, cmd, done)

	s.logger.Info("worker spawned",
		logging.String(logging.FieldEventType, "worker_spawned"),
		logging.String(logging.FieldStage, m.name),
		logging.Int("pid", m.pid),
		logging.Int("restarts", m.restarts),
	)
	return nil
}

func (s *Supervisor) wait(m *managed, cmd *exec.Cmd, done chan struct{}) {
	defer s.exits.Done()
	err := cmd.Wait()

	// done closes only after the exit is recorded, so a caller woken by it
	// sees the final state.
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)
	if m.cmd != cmd {
		return
	}
	runtime := time.Since(m.started)
	pid := m.pid
	m.cmd = nil
	m.pid = 0
	m.lastExit = exitDescription(err)

	logger := s.logger.With(
		logging.String(logging.FieldStage, m.name),
		logging.Int("pid", pid),
		logging.String("exit", m.lastExit),
		logging.Duration("runtime", runtime),
	)
	if m.stopReq || s.stopping {
		m.state = ProcessStopped
		logger.Info("worker exited", logging.String(logging.FieldEventType, "worker_exit"))
		return
	}
	s.scheduleRestartLocked(m, runtime, logger)
}

func (s *Supervisor) scheduleRestartLocked(m *managed, runtime time.Duration, logger *slog.Logger) {
	delay, crashLoop := m.policy.next(runtime)
	if crashLoop {
		m.state = ProcessCrashLooping
		logging.ErrorWithContext(logger, "worker is crash looping; restarts stopped", "worker_crash_loop",
			logging.Alert("worker_crash_loop"),
			logging.Int("restarts", m.restarts),
			logging.String(logging.FieldErrorHint, "inspect the stage log, then restart or re-enable the worker"),
		)
		return
	}
	m.state = ProcessRestarting
	m.restarts++
	logging.WarnWithContext(logger, "worker exited unexpectedly", "worker_restart_scheduled",
		logging.Duration("delay", delay),
		logging.Int("restarts", m.restarts),
		logging.String(logging.FieldErrorHint, "check the stage log for the exit cause"),
		logging.String(logging.FieldImpact, "stage paused until the worker restarts"),
	)
	m.timer = time.AfterFunc(delay, func() { s.restartAfterBackoff(m) })
}

func (s *Supervisor) restartAfterBackoff(m *managed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.timer = nil
	if s.stopping || m.state != ProcessRestarting {
		return
	}
	if err := s.spawnLocked(m); err != nil {
		logger := s.logger.With(logging.String(logging.FieldStage, m.name), logging.Error(err))
		s.scheduleRestartLocked(m, 0, logger)
	}
}

// shutdown terminates every worker in parallel and waits for all of them.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.stopping = true
	timeout := s.cfg.ShutdownTimeout()
	type target struct {
		name string
		pid  int
		done chan struct{}
	}
	var targets []target
	for _, m := range s.workers {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		switch m.state {
		case ProcessRunning:
			m.stopReq = true
			targets = append(targets, target{name: m.name, pid: m.pid, done: m.done})
		case ProcessRestarting:
			m.state = ProcessStopped
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if terminate(t.pid, t.done, timeout) {
				logging.WarnWithContext(s.logger, "worker killed after shutdown timeout", "worker_killed",
					logging.String(logging.FieldStage, t.name),
					logging.Duration("timeout", timeout),
					logging.String(logging.FieldErrorHint, "raise supervisor.shutdown_timeout if items need longer to settle"),
					logging.String(logging.FieldImpact, "the in-flight item is reclaimed after its lease expires"),
				)
			}
		}()
	}
	wg.Wait()
	s.exits.Wait()
}

// report logs one health snapshot; degraded states are logged as warnings.
func (s *Supervisor) report(ctx context.Context) {
	snap := s.Snapshot(ctx)
	attrs := []logging.Attr{
		logging.String("health", string(snap.Health)),
		logging.Int("backlog", snap.Backlog),
		logging.Bool("system_running", snap.SystemRunning),
	}
	for _, w := range snap.Workers {
		attrs = append(attrs, logging.String("worker_"+w.Name, string(w.Health)))
	}
	switch snap.Health {
	case SystemHealthy, SystemBacklogged:
		s.logger.Info("health report", logging.Args(append(attrs, logging.String(logging.FieldEventType, "health_report"))...)...)
	default:
		hint := "check worker logs and the supervisor process table"
		if snap.Error != "" {
			hint = "ledger unreadable: " + snap.Error
		}
		logging.WarnWithContext(s.logger, "pipeline degraded", "health_degraded", append(attrs,
			logging.Alert("health_"+string(snap.Health)),
			logging.String(logging.FieldErrorHint, hint),
		)...)
	}
}

func (s *Supervisor) logDependencies(cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.StageCommands(cfg))
	for _, st := range deps.Missing(statuses) {
		logging.WarnWithContext(s.logger, "stage command not found", "dependency_missing",
			logging.String(logging.FieldStage, st.Name),
			logging.String("command", st.Command),
			logging.String(logging.FieldErrorHint, st.Detail),
			logging.String(logging.FieldImpact, "items in this stage fail until the command is installed"),
		)
	}
	s.logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("stage_commands", len(statuses)),
		logging.Int("missing", len(deps.Missing(statuses))),
	)
}
