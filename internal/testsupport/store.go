package testsupport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts an item carrying payload into the named queue.
func MustEnqueue(t testing.TB, store *queue.Store, queueName string, payload map[string]any, mutate ...func(*queue.NewItem)) *queue.Item {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	item := queue.NewItem{Payload: raw}
	for _, m := range mutate {
		m(&item)
	}
	created, _, err := store.Enqueue(context.Background(), queueName, item)
	if err != nil {
		t.Fatalf("store.Enqueue(%s): %v", queueName, err)
	}
	return created
}

// MustGet reloads an item or fails the test.
func MustGet(t testing.TB, store *queue.Store, queueName string, id int64) *queue.Item {
	t.Helper()
	item, err := store.Get(context.Background(), queueName, id)
	if err != nil {
		t.Fatalf("store.Get(%s#%d): %v", queueName, id, err)
	}
	return item
}

// Clock is a manually advanced time source for lease and heartbeat tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
