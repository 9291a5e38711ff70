package supervisor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
)

const reloadDebounce = 500 * time.Millisecond

// watchConfig reloads the config file when it changes. The directory is
// watched rather than the file so editors that replace the file by rename
// are still seen.
func (s *Supervisor) watchConfig(ctx context.Context) {
	if s.configPath == "" {
		s.logger.Info("config watch skipped; no config file in use")
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("config watch unavailable", logging.Error(err))
		return
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.configPath)); err != nil {
		s.logger.Warn("config watch unavailable", logging.Error(err), logging.String("path", s.configPath))
		return
	}

	target := filepath.Clean(s.configPath)
	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			reload = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watch error", logging.Error(err))
		case <-reload:
			reload = nil
			s.reload(ctx)
		}
	}
}

func (s *Supervisor) reload(ctx context.Context) {
	next, _, _, err := config.Load(s.configPath)
	if err != nil {
		logging.WarnWithContext(s.logger, "config reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay in effect"),
		)
		return
	}
	s.Reconcile(ctx, next)
}

// Reconcile applies a new configuration: newly enabled stages get a worker
// process and newly disabled stages have theirs stopped. Other settings
// take effect when a worker restarts.
func (s *Supervisor) Reconcile(ctx context.Context, next *config.Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = next
	s.mu.Unlock()

	var started, stopped []string
	for _, name := range config.StageNames {
		was, now := prev.StageSettings(name).Enabled, next.StageSettings(name).Enabled
		switch {
		case now && !was:
			if err := s.store.EnsureWorker(ctx, name, name, true); err != nil {
				s.logger.Warn("failed to seed worker record", logging.String(logging.FieldStage, name), logging.Error(err))
			}
			if err := s.StartWorker(name); err != nil {
				s.logger.Warn("failed to start worker", logging.String(logging.FieldStage, name), logging.Error(err))
				continue
			}
			started = append(started, name)
		case !now && was:
			if err := s.StopWorker(name); err != nil {
				s.logger.Warn("failed to stop worker", logging.String(logging.FieldStage, name), logging.Error(err))
				continue
			}
			stopped = append(stopped, name)
		}
	}
	s.logger.Info("config reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Any("started", started),
		logging.Any("stopped", stopped),
	)
}
