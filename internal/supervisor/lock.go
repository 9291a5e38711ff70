package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
)

const (
	lockFileName = "supervisor.lock"
	pidFileName  = "supervisor.pid"
)

// acquireLock takes the single-instance lock and writes the pid file. The
// returned func releases both.
func (s *Supervisor) acquireLock() (func(), error) {
	dataDir := s.config().Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(dataDir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	pidPath := filepath.Join(dataDir, pidFileName)
	if err := renameio.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() {
		if err := os.Remove(pidPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove pid file", logging.Error(err))
		}
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release supervisor lock", logging.Error(err))
		}
	}, nil
}

// RunningPID returns the pid of the supervisor holding the lock for cfg's
// data directory, or 0 when none is running.
func RunningPID(cfg *config.Config) (int, error) {
	lockPath := filepath.Join(cfg.Paths.DataDir, lockFileName)
	if _, err := os.Stat(lockPath); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return 0, fmt.Errorf("check supervisor lock: %w", err)
	}
	if ok {
		_ = fl.Unlock()
		return 0, nil
	}
	raw, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, pidFileName))
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}
