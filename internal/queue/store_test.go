package queue_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smoothbdr/internal/queue"
	"smoothbdr/internal/testsupport"
)

func openStore(t *testing.T) (*queue.Store, *testsupport.Clock) {
	t.Helper()
	clock := testsupport.NewClock()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now)), clock
}

func lease(d time.Duration) queue.AcquireOptions {
	return queue.AcquireOptions{LeaseTimeout: d}
}

func TestAcquireLeaseExclusivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const items, callers = 5, 16
	for i := 0; i < items; i++ {
		testsupport.MustEnqueue(t, store, queue.Research, map[string]any{"n": i})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[int64]string{}
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		owner := fmt.Sprintf("worker-%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			item, err := store.Acquire(ctx, queue.Research, owner, lease(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if item == nil {
				return
			}
			if prev, dup := claimed[item.ID]; dup {
				errs = append(errs, fmt.Errorf("item %d claimed by %s and %s", item.ID, prev, owner))
				return
			}
			claimed[item.ID] = owner
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, claimed, items)

	for id, owner := range claimed {
		got := testsupport.MustGet(t, store, queue.Research, id)
		assert.Equal(t, queue.StatusProcessing, got.Status)
		assert.Equal(t, owner, got.LockOwner)
	}
}

func TestAcquireBatchClaimsUpToLimit(t *testing.T) {
	store, _ := openStore(t)
	for i := 0; i < 4; i++ {
		testsupport.MustEnqueue(t, store, queue.Draft, map[string]any{"n": i})
	}

	batch, err := store.AcquireBatch(context.Background(), queue.Draft, "w1", lease(time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i := 1; i < len(batch); i++ {
		assert.Less(t, batch[i-1].ID, batch[i].ID, "created order expected")
	}

	rest, err := store.AcquireBatch(context.Background(), queue.Draft, "w2", lease(time.Minute), 3)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestAcquireReclaimsExpiredLease(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Research, map[string]any{"company": "Acme"})

	first, err := store.Acquire(ctx, queue.Research, "worker-a", lease(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, item.ID, first.ID)

	clock.Advance(30 * time.Second)
	none, err := store.Acquire(ctx, queue.Research, "worker-b", lease(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, none, "live lease must not be reclaimable")

	clock.Advance(31 * time.Second)
	reclaimed, err := store.Acquire(ctx, queue.Research, "worker-b", lease(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, item.ID, reclaimed.ID)
	assert.Equal(t, "worker-b", reclaimed.LockOwner)
	assert.Equal(t, 0, reclaimed.Attempts, "reclaim does not count an attempt")

	_, err = store.Complete(ctx, queue.Research, item.ID, queue.Completion{Status: queue.StatusCompleted, Owner: "worker-a"})
	assert.ErrorIs(t, err, queue.ErrLeaseLost)
	_, _, err = store.Fail(ctx, queue.Research, item.ID, queue.FailRequest{Owner: "worker-a", Message: "late"})
	assert.ErrorIs(t, err, queue.ErrLeaseLost)
	assert.ErrorIs(t, store.ExtendLease(ctx, queue.Research, item.ID, "worker-a", time.Minute), queue.ErrLeaseLost)
}

func TestStaleOwnerCannotOverwriteReclaimedResult(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Research, map[string]any{"n": 1})

	_, err := store.Acquire(ctx, queue.Research, "worker-a", lease(time.Minute))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = store.Acquire(ctx, queue.Research, "worker-b", lease(time.Minute))
	require.NoError(t, err)
	_, err = store.Complete(ctx, queue.Research, item.ID, queue.Completion{
		Status: queue.StatusCompleted, Owner: "worker-b", Fields: map[string]any{"result": "from-b"},
	})
	require.NoError(t, err)

	_, err = store.Complete(ctx, queue.Research, item.ID, queue.Completion{
		Status: queue.StatusCompleted, Owner: "worker-a", Fields: map[string]any{"result": "from-a"},
	})
	assert.ErrorIs(t, err, queue.ErrLeaseLost)

	got := testsupport.MustGet(t, store, queue.Research, item.ID)
	assert.JSONEq(t, `{"n":1,"result":"from-b"}`, string(got.Payload))
	assert.Equal(t, "worker-b", got.SettledBy)

	_, err = store.Complete(ctx, queue.Research, item.ID, queue.Completion{
		Status: queue.StatusCompleted, Owner: "worker-b", Fields: map[string]any{"result": "from-b"},
	})
	assert.NoError(t, err, "the settling owner may replay its own call")
}

func TestStaleContinueCannotRollBackDeepeningState(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Deepening, nil)

	_, err := store.Acquire(ctx, queue.Deepening, "worker-a", lease(time.Minute))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = store.Acquire(ctx, queue.Deepening, "worker-b", lease(time.Minute))
	require.NoError(t, err)
	advanced := queue.DeepeningState{Tried: []string{"broaden_sources", "alternate_queries"}, StaleRounds: 2}
	_, err = store.Complete(ctx, queue.Deepening, item.ID, queue.Completion{
		Status: queue.StatusPending, Owner: "worker-b", Deepening: &advanced,
	})
	require.NoError(t, err)

	stale := queue.DeepeningState{Tried: []string{"broaden_sources"}, StaleRounds: 1}
	_, err = store.Complete(ctx, queue.Deepening, item.ID, queue.Completion{
		Status: queue.StatusPending, Owner: "worker-a", Deepening: &stale,
	})
	assert.ErrorIs(t, err, queue.ErrLeaseLost)
	assert.Equal(t, advanced, testsupport.MustGet(t, store, queue.Deepening, item.ID).Deepening)

	_, err = store.Acquire(ctx, queue.Deepening, "worker-c", lease(time.Minute))
	require.NoError(t, err)
	_, _, err = store.Fail(ctx, queue.Deepening, item.ID, queue.FailRequest{Owner: "worker-c", Message: "timeout"})
	require.NoError(t, err)
	_, err = store.Complete(ctx, queue.Deepening, item.ID, queue.Completion{
		Status: queue.StatusPending, Owner: "worker-b", Deepening: &advanced,
	})
	assert.ErrorIs(t, err, queue.ErrLeaseLost, "a later transition ends the replay window")
}

func TestExtendLeaseKeepsItemHeld(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Draft, nil)

	_, err := store.Acquire(ctx, queue.Draft, "owner", lease(time.Minute))
	require.NoError(t, err)
	clock.Advance(50 * time.Second)
	require.NoError(t, store.ExtendLease(ctx, queue.Draft, item.ID, "owner", time.Minute))
	clock.Advance(50 * time.Second)

	other, err := store.Acquire(ctx, queue.Draft, "other", lease(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestAcquireOrderPolicies(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()

	low := testsupport.MustEnqueue(t, store, queue.Research, nil, func(n *queue.NewItem) { n.Priority = 1 })
	clock.Advance(time.Second)
	high := testsupport.MustEnqueue(t, store, queue.Research, nil, func(n *queue.NewItem) { n.Priority = 9 })

	got, err := store.Acquire(ctx, queue.Research, "p", queue.AcquireOptions{Order: queue.OrderPriority, LeaseTimeout: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)
	got, err = store.Acquire(ctx, queue.Research, "p", queue.AcquireOptions{Order: queue.OrderPriority, LeaseTimeout: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, low.ID, got.ID)

	score := func(v float64) func(*queue.NewItem) {
		return func(n *queue.NewItem) { n.QualityScore = &v }
	}
	unscored := testsupport.MustEnqueue(t, store, queue.Draft, nil)
	weak := testsupport.MustEnqueue(t, store, queue.Draft, nil, score(0.2))
	strong := testsupport.MustEnqueue(t, store, queue.Draft, nil, score(0.9))

	batch, err := store.AcquireBatch(ctx, queue.Draft, "q", queue.AcquireOptions{Order: queue.OrderQuality, LeaseTimeout: time.Minute}, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, []int64{strong.ID, weak.ID, unscored.ID}, []int64{batch[0].ID, batch[1].ID, batch[2].ID})
}

func TestFailAttemptsMonotonicUntilTerminal(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Research, nil, func(n *queue.NewItem) { n.MaxAttempts = 3 })

	last := 0
	for want := 1; want <= 3; want++ {
		got, err := store.Acquire(ctx, queue.Research, "w", lease(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got, "attempt %d should be acquirable", want)

		status, attempts, err := store.Fail(ctx, queue.Research, item.ID, queue.FailRequest{Owner: "w", Message: "timeout"})
		require.NoError(t, err)
		assert.Greater(t, attempts, last)
		assert.Equal(t, want, attempts)
		last = attempts
		if want < 3 {
			assert.Equal(t, queue.StatusPending, status)
		} else {
			assert.Equal(t, queue.StatusFailed, status)
		}
	}

	_, _, err := store.Fail(ctx, queue.Research, item.ID, queue.FailRequest{Message: "again"})
	assert.ErrorIs(t, err, queue.ErrNotActive)

	final := testsupport.MustGet(t, store, queue.Research, item.ID)
	assert.Equal(t, queue.StatusFailed, final.Status)
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, "timeout", final.LastError)
	assert.Equal(t, queue.FailureTransient, final.FailureKind)
	assert.Empty(t, final.LockOwner)
	assert.Nil(t, final.LeaseExpiry)
}

func TestFailValidationIsTerminalImmediately(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Draft, nil, func(n *queue.NewItem) { n.MaxAttempts = 5 })
	_, err := store.Acquire(ctx, queue.Draft, "w", lease(time.Minute))
	require.NoError(t, err)

	status, attempts, err := store.Fail(ctx, queue.Draft, item.ID, queue.FailRequest{
		Owner: "w", Message: "missing company name", MaxAttempts: 1, Kind: queue.FailureValidation,
	})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, status)
	assert.Equal(t, 1, attempts)

	got := testsupport.MustGet(t, store, queue.Draft, item.ID)
	assert.Equal(t, queue.FailureValidation, got.FailureKind)
	assert.Equal(t, 1, got.MaxAttempts)
}

func TestFailRetryDelayPostponesReacquire(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Delivery, nil)
	_, err := store.Acquire(ctx, queue.Delivery, "w", lease(time.Minute))
	require.NoError(t, err)

	_, _, err = store.Fail(ctx, queue.Delivery, item.ID, queue.FailRequest{Owner: "w", RetryDelay: 10 * time.Second})
	require.NoError(t, err)

	got, err := store.Acquire(ctx, queue.Delivery, "w", lease(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.Advance(11 * time.Second)
	got, err = store.Acquire(ctx, queue.Delivery, "w", lease(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.ID, got.ID)
}

func TestCompleteIsIdempotent(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Research, map[string]any{"company": "Acme"})
	_, err := store.Acquire(ctx, queue.Research, "w", lease(time.Minute))
	require.NoError(t, err)

	score := 0.82
	completion := queue.Completion{
		Status: queue.StatusCompleted,
		Owner:  "w",
		Fields: map[string]any{"summary": "industrial robotics"},
		Score:  &score,
	}
	first, err := store.Complete(ctx, queue.Research, item.ID, completion)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := store.Complete(ctx, queue.Research, item.ID, completion)
	require.NoError(t, err)

	assert.Equal(t, queue.StatusCompleted, second.Status)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "replay must not touch updated_at")
	require.NotNil(t, first.CompletedAt)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
	assert.JSONEq(t, string(first.Payload), string(second.Payload))
	assert.JSONEq(t, `{"company":"Acme","summary":"industrial robotics"}`, string(second.Payload))
	require.NotNil(t, second.QualityScore)
	assert.InDelta(t, 0.82, *second.QualityScore, 1e-9)
	assert.Empty(t, second.LockOwner)
	assert.Nil(t, second.LeaseExpiry)
}

func TestCompleteStoresDeepeningStateAndReason(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Deepening, nil)
	_, err := store.Acquire(ctx, queue.Deepening, "w", lease(time.Minute))
	require.NoError(t, err)

	state := queue.DeepeningState{Tried: []string{"broaden_sources"}, StaleRounds: 1, Cycles: 0}
	got, err := store.Complete(ctx, queue.Deepening, item.ID, queue.Completion{
		Status: queue.StatusPending, Owner: "w", Deepening: &state,
	})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, state, got.Deepening)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, 0, got.Attempts)

	_, err = store.Acquire(ctx, queue.Deepening, "w", lease(time.Minute))
	require.NoError(t, err)
	got, err = store.Complete(ctx, queue.Deepening, item.ID, queue.Completion{
		Status: queue.StatusExhausted, Owner: "w", Reason: "no new data after 3 consecutive deepening rounds",
	})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusExhausted, got.Status)
	assert.NotEmpty(t, got.StatusReason)
	assert.True(t, got.Status.IsTerminal())
}

func TestCompleteFromGuard(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Research, nil)

	_, err := store.Complete(ctx, queue.Research, item.ID, queue.Completion{Status: queue.StatusCompleted, From: queue.StatusLowQuality})
	assert.ErrorIs(t, err, queue.ErrNotActive)

	_, err = store.Acquire(ctx, queue.Research, "w", lease(time.Minute))
	require.NoError(t, err)
	_, err = store.Complete(ctx, queue.Research, item.ID, queue.Completion{Status: queue.StatusLowQuality, Owner: "w"})
	require.NoError(t, err)

	got, err := store.Complete(ctx, queue.Research, item.ID, queue.Completion{Status: queue.StatusCompleted, From: queue.StatusLowQuality})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, got.Status)
}

func TestEnqueueDeduplicatesBySource(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	src := &queue.SourceRef{Queue: queue.Research, ItemID: 7, Seq: 0}
	payload := json.RawMessage(`{"company":"Acme"}`)

	first, created, err := store.Enqueue(ctx, queue.Draft, queue.NewItem{Payload: payload, Source: src})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.Enqueue(ctx, queue.Draft, queue.NewItem{Payload: payload, Source: src})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	sibling, created, err := store.Enqueue(ctx, queue.Draft, queue.NewItem{Payload: payload, Source: &queue.SourceRef{Queue: queue.Research, ItemID: 7, Seq: 1}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, sibling.ID)

	stats, err := store.Stats(ctx, queue.Draft)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[queue.StatusPending])

	_, _, err = store.Enqueue(ctx, queue.Draft, queue.NewItem{Payload: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestApproveAndRetryFailed(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	held := testsupport.MustEnqueue(t, store, queue.Delivery, nil, func(n *queue.NewItem) { n.Status = queue.StatusAwaitingApproval })
	got, err := store.Acquire(ctx, queue.Delivery, "w", lease(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got, "awaiting approval is not claimable")

	require.NoError(t, store.Approve(ctx, queue.Delivery, held.ID))
	assert.ErrorIs(t, store.Approve(ctx, queue.Delivery, held.ID), queue.ErrNotActive)
	assert.ErrorIs(t, store.Approve(ctx, queue.Delivery, 999), queue.ErrNotFound)

	got, err = store.Acquire(ctx, queue.Delivery, "w", lease(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	_, _, err = store.Fail(ctx, queue.Delivery, got.ID, queue.FailRequest{Owner: "w", MaxAttempts: 1, Message: "smtp down"})
	require.NoError(t, err)

	n, err := store.RetryFailed(ctx, queue.Delivery)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	reset := testsupport.MustGet(t, store, queue.Delivery, held.ID)
	assert.Equal(t, queue.StatusPending, reset.Status)
	assert.Zero(t, reset.Attempts)
	assert.Empty(t, reset.LastError)
}

func TestResetExpiredLeases(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.Reply, nil)
	_, err := store.Acquire(ctx, queue.Reply, "crashed", lease(time.Minute))
	require.NoError(t, err)

	n, err := store.ResetExpiredLeases(ctx, queue.Reply)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Minute)
	n, err = store.ResetExpiredLeases(ctx, queue.Reply)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	got := testsupport.MustGet(t, store, queue.Reply, item.ID)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Empty(t, got.LockOwner)
}

func TestListFilters(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	a := testsupport.MustEnqueue(t, store, queue.Discovery, nil, func(n *queue.NewItem) { n.LeadRef = "lead-a" })
	testsupport.MustEnqueue(t, store, queue.Discovery, nil, func(n *queue.NewItem) { n.LeadRef = "lead-b" })
	_, err := store.Acquire(ctx, queue.Discovery, "w", lease(time.Minute))
	require.NoError(t, err)

	items, err := store.List(ctx, queue.Discovery, queue.ListFilter{Statuses: []queue.Status{queue.StatusProcessing}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)

	items, err = store.List(ctx, queue.Discovery, queue.ListFilter{LeadRef: "lead-b"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lead-b", items[0].LeadRef)

	items, err = store.List(ctx, queue.Discovery, queue.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUnknownQueueIsRejected(t *testing.T) {
	store, _ := openStore(t)
	_, err := store.Acquire(context.Background(), "scoring", "w", lease(time.Minute))
	assert.ErrorIs(t, err, queue.ErrUnknownQueue)
	_, _, err = store.Enqueue(context.Background(), "research_queue; DROP TABLE workers", queue.NewItem{})
	assert.ErrorIs(t, err, queue.ErrUnknownQueue)
}

func TestWorkerRecordsAndSystemFlag(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()

	enabled, err := store.WorkerEnabled(ctx, "research")
	require.NoError(t, err)
	assert.True(t, enabled, "missing record defaults to enabled")

	started := clock.Now()
	require.NoError(t, store.RecordHeartbeat(ctx, queue.Heartbeat{Name: "research", Stage: "research", WorkerID: "research-1", PID: 4242, StartedAt: started}))
	require.NoError(t, store.SetCurrentItem(ctx, "research", "research#3"))
	require.NoError(t, store.IncrementCounters(ctx, "research", 2, 1))

	rec, err := store.Worker(ctx, "research")
	require.NoError(t, err)
	assert.True(t, rec.Enabled)
	assert.Equal(t, "research#3", rec.CurrentItemRef)
	assert.EqualValues(t, 2, rec.ProcessedCount)
	assert.EqualValues(t, 1, rec.ErrorCount)
	assert.Equal(t, 4242, rec.PID)
	require.NotNil(t, rec.LastHeartbeat)
	assert.True(t, started.Equal(*rec.LastHeartbeat))

	require.NoError(t, store.SetWorkerEnabled(ctx, "research", false))
	clock.Advance(time.Minute)
	require.NoError(t, store.RecordHeartbeat(ctx, queue.Heartbeat{Name: "research", Stage: "research", WorkerID: "research-1", StartedAt: started}))
	enabled, err = store.WorkerEnabled(ctx, "research")
	require.NoError(t, err)
	assert.False(t, enabled, "heartbeat must not re-enable a disabled worker")

	require.NoError(t, store.SetCurrentItem(ctx, "research", ""))
	rec, err = store.Worker(ctx, "research")
	require.NoError(t, err)
	assert.Empty(t, rec.CurrentItemRef)
	assert.EqualValues(t, 2, rec.ProcessedCount, "counters survive heartbeats")

	_, err = store.Worker(ctx, "nobody")
	assert.ErrorIs(t, err, queue.ErrNotFound)

	require.NoError(t, store.EnsureWorker(ctx, "draft", "draft", true))
	require.NoError(t, store.EnsureWorker(ctx, "research", "research", true))
	workers, err := store.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "draft", workers[0].Name)
	assert.False(t, workers[1].Enabled, "EnsureWorker keeps the existing flag")

	running, err := store.SystemRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
	require.NoError(t, store.SetSystemRunning(ctx, false))
	running, err = store.SystemRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestMigrationsApplyOnceAndHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenStore(t, cfg)
	testsupport.MustEnqueue(t, first, queue.Research, map[string]any{"company": "Acme"})
	require.NoError(t, first.Close())

	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0002_settled_by", version)

	health, err := store.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", health.Driver)
	assert.True(t, health.DatabaseExists)
	assert.True(t, health.DatabaseReadable)
	assert.True(t, health.IntegrityCheck)
	assert.Empty(t, health.MissingTables)
	assert.Empty(t, health.MissingColumns)
	assert.Equal(t, 1, health.TotalItems)

	summary, err := store.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Total)
}
