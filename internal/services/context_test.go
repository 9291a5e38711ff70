package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"smoothbdr/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithStage(ctx, "research")
	ctx = services.WithQueue(ctx, "research")
	ctx = services.WithWorker(ctx, "research-1a2b")
	ctx = services.WithRequestID(ctx, "req-123")

	id, ok := services.ItemIDFromContext(ctx)
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	stage, ok := services.StageFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "research", stage)

	name, ok := services.QueueFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "research", name)

	worker, ok := services.WorkerFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "research-1a2b", worker)

	rid, ok := services.RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-123", rid)
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithWorker(ctx, "")
	ctx = services.WithRequestID(ctx, "")

	_, ok := services.StageFromContext(ctx)
	assert.False(t, ok)
	_, ok = services.WorkerFromContext(ctx)
	assert.False(t, ok)
	_, ok = services.RequestIDFromContext(ctx)
	assert.False(t, ok)
	_, ok = services.ItemIDFromContext(ctx)
	assert.False(t, ok)
}
