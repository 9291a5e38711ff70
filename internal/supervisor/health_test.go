package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/testsupport"
)

func TestClassifySystem(t *testing.T) {
	th := Thresholds{BacklogWarn: 10, BacklogCritical: 50}
	tests := []struct {
		name    string
		backlog int
		healthy int
		want    SystemHealth
	}{
		{"idle with no workers", 0, 0, SystemHealthy},
		{"work but nobody alive", 3, 0, SystemStalled},
		{"below warn", 9, 1, SystemHealthy},
		{"at warn", 10, 1, SystemBacklogged},
		{"at critical", 50, 2, SystemCritical},
		{"critical but stalled", 80, 0, SystemStalled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySystem(tt.backlog, tt.healthy, th))
		})
	}
	assert.Equal(t, SystemHealthy, classifySystem(1000, 1, Thresholds{}), "zero thresholds disable backlog levels")
}

func TestCollectClassifiesWorkersByHeartbeatAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.RecordHeartbeat(ctx, queue.Heartbeat{Name: config.StageDiscovery, Stage: config.StageDiscovery, WorkerID: "d-1"}))
	clock.Advance(cfg.StaleThreshold() + time.Second)
	require.NoError(t, store.RecordHeartbeat(ctx, queue.Heartbeat{Name: config.StageResearch, Stage: config.StageResearch, WorkerID: "r-1"}))
	require.NoError(t, store.SetWorkerEnabled(ctx, config.StageDraft, false))
	testsupport.MustEnqueue(t, store, queue.Research, nil)
	testsupport.MustEnqueue(t, store, queue.Draft, nil)

	snap := Collect(ctx, store, Thresholds{Stale: cfg.StaleThreshold(), BacklogWarn: 2, BacklogCritical: 10})
	assert.Equal(t, SystemBacklogged, snap.Health)
	assert.Equal(t, 2, snap.Backlog)
	assert.True(t, snap.SystemRunning)
	assert.Equal(t, 1, snap.Queues[queue.Research][queue.StatusPending])
	require.Len(t, snap.Workers, len(config.StageNames))

	discovery, _ := snap.Worker(config.StageDiscovery)
	assert.Equal(t, WorkerStale, discovery.Health)
	assert.InDelta(t, (cfg.StaleThreshold() + time.Second).Seconds(), discovery.HeartbeatAge, 0.01)

	research, _ := snap.Worker(config.StageResearch)
	assert.Equal(t, WorkerHealthy, research.Health)
	assert.Equal(t, "r-1", research.WorkerID)

	draft, _ := snap.Worker(config.StageDraft)
	assert.Equal(t, WorkerStopped, draft.Health)
	assert.False(t, draft.Enabled)

	reply, _ := snap.Worker(config.StageReply)
	assert.Equal(t, WorkerStopped, reply.Health)
	assert.True(t, reply.Enabled)
}

func TestCollectReportsStalledPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustEnqueue(t, store, queue.Discovery, nil)

	snap := Collect(context.Background(), store, ThresholdsFromConfig(cfg))
	assert.Equal(t, SystemStalled, snap.Health)
	assert.Equal(t, 1, snap.Backlog)
}

func TestCollectDegradesToUnknownWhenLedgerUnreadable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	require.NoError(t, store.RecordHeartbeat(context.Background(), queue.Heartbeat{Name: config.StageReply, Stage: config.StageReply}))
	require.NoError(t, store.Close())

	snap := Collect(context.Background(), store, ThresholdsFromConfig(cfg))
	assert.Equal(t, SystemUnknown, snap.Health)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Workers, "no stale success data when the ledger is unreadable")
	assert.Empty(t, snap.Queues)
}
