package stage

import (
	"context"

	"smoothbdr/internal/queue"
)

// Handler is the domain logic bound to one stage. Process must be safe to
// re-run for the same item: a worker that crashes after Process returns but
// before the outcome is recorded hands the item to another worker once the
// lease expires.
//
// A returned error is recorded as a failed attempt. Errors tagged with
// services.ErrValidation fail the item immediately.
type Handler interface {
	Process(context.Context, *queue.Item) (Outcome, error)
	HealthCheck(context.Context) Health
}

// HandlerFunc adapts a function into a Handler that always reports healthy.
type HandlerFunc func(context.Context, *queue.Item) (Outcome, error)

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, item *queue.Item) (Outcome, error) {
	return f(ctx, item)
}

// HealthCheck reports the function as ready.
func (f HandlerFunc) HealthCheck(context.Context) Health {
	return Healthy("func")
}
