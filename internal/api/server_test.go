package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smoothbdr/internal/api"
	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
	"smoothbdr/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *queue.Store
	handler http.Handler
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	sup, err := supervisor.New(cfg, store, logging.NewNop())
	require.NoError(t, err)
	srv, err := api.NewServer(cfg, store, sup, logging.NewNop())
	require.NoError(t, err)
	return fixture{cfg: cfg, store: store, handler: srv.Handler()}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSubmitLeadCreatesDiscoveryItem(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/leads", map[string]any{"payload": map[string]any{"company": "Acme"}, "priority": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[api.LeadResponse](t, w)
	assert.Equal(t, queue.Discovery, resp.Item.Queue)
	assert.Equal(t, "pending", resp.Item.Status)
	assert.Equal(t, 5, resp.Item.Priority)
	_, err := uuid.Parse(resp.Item.LeadRef)
	assert.NoError(t, err, "generated lead ref should be a uuid")

	stored := testsupport.MustGet(t, f.store, queue.Discovery, resp.Item.ID)
	assert.JSONEq(t, `{"company":"Acme"}`, string(stored.Payload))
}

func TestSubmitLeadKeepsCallerRef(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/leads", api.LeadRequest{LeadRef: "crm-42"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "crm-42", decode[api.LeadResponse](t, w).Item.LeadRef)
}

func TestSubmitLeadRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/leads", map[string]any{"payload": []int{1, 2}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/leads", map[string]any{"lead": "typo"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown fields are rejected")
}

func TestQueuesReportsEveryStatus(t *testing.T) {
	f := newFixture(t)
	testsupport.MustEnqueue(t, f.store, queue.Research, nil)

	w := f.do(t, http.MethodGet, "/api/queues", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[api.QueueStatsResponse](t, w)
	require.Contains(t, resp.Queues, queue.Research)
	assert.Equal(t, 1, resp.Queues[queue.Research]["pending"])
	assert.Equal(t, 0, resp.Queues[queue.Research]["failed"])
	assert.Len(t, resp.Queues, len(queue.Names()))
}

func TestQueueItemsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	testsupport.MustEnqueue(t, f.store, queue.Delivery, nil)
	testsupport.MustEnqueue(t, f.store, queue.Delivery, nil, func(n *queue.NewItem) { n.Status = queue.StatusAwaitingApproval })

	w := f.do(t, http.MethodGet, "/api/queues/delivery/items?status=awaiting_approval", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[api.QueueListResponse](t, w).Items
	require.Len(t, items, 1)
	assert.Equal(t, "awaiting_approval", items[0].Status)

	w = f.do(t, http.MethodGet, "/api/queues/delivery/items", nil)
	assert.Len(t, decode[api.QueueListResponse](t, w).Items, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/queues/delivery/items?status=bogus", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/queues/nope/items", nil).Code)
}

func TestQueueItemNotFound(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/queues/draft/items/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/queues/draft/items/abc", nil).Code)
}

func TestApproveReleasesHeldItem(t *testing.T) {
	f := newFixture(t)
	held := testsupport.MustEnqueue(t, f.store, queue.Delivery, nil, func(n *queue.NewItem) { n.Status = queue.StatusAwaitingApproval })
	path := "/api/queues/delivery/items/" + itoa(held.ID) + "/approve"

	w := f.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "pending", decode[api.QueueItemResponse](t, w).Item.Status)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path, nil).Code, "approving twice conflicts")
}

func TestRetryResetsFailedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, f.store, queue.Research, nil)
	status, _, err := f.store.Fail(ctx, queue.Research, item.ID, queue.FailRequest{Message: "boom", MaxAttempts: 1})
	require.NoError(t, err)
	require.Equal(t, queue.StatusFailed, status)

	w := f.do(t, http.MethodPost, "/api/queues/research/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, api.RetryResponse{Queue: queue.Research, Retried: 1}, decode[api.RetryResponse](t, w))

	reloaded := testsupport.MustGet(t, f.store, queue.Research, item.ID)
	assert.Equal(t, queue.StatusPending, reloaded.Status)
	assert.Zero(t, reloaded.Attempts)
}

func TestWorkerToggleWritesLedgerFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(t, http.MethodPost, "/api/workers/draft/disable", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	enabled, err := f.store.WorkerEnabled(ctx, config.StageDraft)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workers/draft/enable", nil).Code)
	enabled, err = f.store.WorkerEnabled(ctx, config.StageDraft)
	require.NoError(t, err)
	assert.True(t, enabled)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/workers/janitor/disable", nil).Code)
}

func TestSystemStopAndStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/system/stop", nil).Code)
	running, err := f.store.SystemRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/system/start", nil).Code)
	running, err = f.store.SystemRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestHealthAndWorkers(t *testing.T) {
	f := newFixture(t)
	testsupport.MustEnqueue(t, f.store, queue.Discovery, nil)

	w := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[supervisor.Snapshot](t, w)
	assert.Equal(t, supervisor.SystemStalled, snap.Health)
	assert.Equal(t, 1, snap.Backlog)

	w = f.do(t, http.MethodGet, "/api/workers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	workers := decode[struct {
		Workers []supervisor.WorkerStatus `json:"workers"`
	}](t, w).Workers
	assert.Len(t, workers, len(config.StageNames))
}

func TestHealthUnavailableWhenLedgerUnreadable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/workers", nil).Code)
}

func TestBearerTokenGuardsRoutes(t *testing.T) {
	f := newFixture(t)
	f.cfg.API.Token = "s3cret"
	sup, err := supervisor.New(f.cfg, f.store, nil)
	require.NoError(t, err)
	srv, err := api.NewServer(f.cfg, f.store, sup, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerStartServesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.cfg.API.Bind = "127.0.0.1:0"
	sup, err := supervisor.New(f.cfg, f.store, nil)
	require.NoError(t, err)
	srv, err := api.NewServer(f.cfg, f.store, sup, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))

	resp, err := http.Get("http://" + srv.Addr() + "/api/queues")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
