package supervisor

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessState is the supervisor's view of one worker process.
type ProcessState string

const (
	ProcessRunning      ProcessState = "running"
	ProcessRestarting   ProcessState = "restarting"
	ProcessStopped      ProcessState = "stopped"
	ProcessCrashLooping ProcessState = "crash_looping"
)

// ProcessStatus describes a supervised worker process.
type ProcessStatus struct {
	PID        int          `json:"pid,omitempty"`
	State      ProcessState `json:"state"`
	Restarts   int          `json:"restarts"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	LastExit   string       `json:"last_exit,omitempty"`
	RSSBytes   uint64       `json:"rss_bytes,omitempty"`
	CPUPercent float64      `json:"cpu_percent,omitempty"`
}

// managed tracks one stage's worker process across restarts.
type managed struct {
	name     string
	state    ProcessState
	cmd      *exec.Cmd
	pid      int
	started  time.Time
	done     chan struct{}
	stopReq  bool
	restarts int
	lastExit string
	policy   restartPolicy
	timer    *time.Timer
}

func (m *managed) status() ProcessStatus {
	st := ProcessStatus{PID: m.pid, State: m.state, Restarts: m.restarts, LastExit: m.lastExit}
	if m.state == ProcessRunning {
		started := m.started
		st.StartedAt = &started
	}
	return st
}

// sampleResources fills RSS and CPU from the live process. Sampling errors
// leave the fields empty; the process may have exited in between.
func sampleResources(ctx context.Context, st *ProcessStatus) {
	if st.PID <= 0 {
		return
	}
	proc, err := process.NewProcessWithContext(ctx, int32(st.PID))
	if err != nil {
		return
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
}

// terminate asks a worker to finish its in-flight item and exit, and kills
// its process group once timeout passes.
func terminate(pid int, done <-chan struct{}, timeout time.Duration) (forced bool) {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = unix.Kill(-pid, unix.SIGKILL)
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		_ = unix.Kill(-pid, unix.SIGKILL)
		<-done
		return true
	}
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
