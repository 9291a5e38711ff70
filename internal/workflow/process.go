package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/services"
	"smoothbdr/internal/stage"
)

// processItem runs the handler and settles the result. It reports whether
// the item was settled without error.
func (w *Worker) processItem(ctx context.Context, item *queue.Item) bool {
	itemCtx := withItemContext(ctx, w.stage, w.id, item)
	logger := logging.WithContext(itemCtx, w.logger)
	w.setLastItem(item.Ref())

	start := time.Now()
	logger.Info("item started",
		logging.String(logging.FieldEventType, "item_start"),
		logging.Int("attempts", item.Attempts),
		logging.Int("max_attempts", item.MaxAttempts),
		logging.String("lead_ref", item.LeadRef),
	)

	out, err := w.invoke(itemCtx, item)
	if err != nil {
		w.settleFailure(itemCtx, logger, item, err)
		w.setLastError(err)
		return false
	}

	status, err := w.settle(itemCtx, logger, item, out)
	if err != nil {
		w.setLastError(err)
		if errors.Is(err, queue.ErrLeaseLost) {
			logging.WarnWithContext(logger, "lease lost before settling", "lease_lost",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise lease_timeout if processing routinely outlives it"),
				logging.String(logging.FieldImpact, "another worker owns the item; this result was discarded"),
			)
			return false
		}
		logging.ErrorWithContext(logger, "failed to settle item", "settle_failed",
			logging.Error(err),
			logging.String("outcome", string(out.Kind)),
			logging.String(logging.FieldErrorHint, "item stays leased and is retried after its lease expires"),
		)
		return false
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "item_settled"),
		logging.String("outcome", string(out.Kind)),
		logging.String("status", string(status)),
		logging.Duration("duration", time.Since(start)),
	}
	if out.Score != nil {
		attrs = append(attrs, logging.Float64("score", *out.Score))
	}
	if reason := strings.TrimSpace(out.Reason); reason != "" {
		attrs = append(attrs, logging.String("reason", reason))
	}
	logger.Info("item settled", logging.Args(attrs...)...)
	return true
}

// invoke calls the handler, converting a panic into a transient error.
func (w *Worker) invoke(ctx context.Context, item *queue.Item) (out stage.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, w.stage.Name, "process", fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return w.stage.Handler.Process(ctx, item)
}

// settleFailure records a handler error as a failed attempt. Validation
// errors fail the item on the spot.
func (w *Worker) settleFailure(ctx context.Context, logger *slog.Logger, item *queue.Item, handlerErr error) {
	kind := services.FailureKind(handlerErr)
	req := queue.FailRequest{
		Owner:       w.id,
		Message:     strings.TrimSpace(handlerErr.Error()),
		MaxAttempts: services.MaxAttemptsFor(handlerErr, 0),
		Kind:        kind,
	}
	if kind != queue.FailureValidation {
		req.RetryDelay = w.stage.RetryDelay
	}

	status, attempts, err := w.store.Fail(ctx, w.stage.Queue, item.ID, req)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record item failure", "fail_not_recorded",
			logging.Error(err),
			logging.String("handler_error", req.Message),
			logging.String(logging.FieldErrorHint, "item is retried after its lease expires"),
		)
		return
	}

	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.Int("attempts", attempts),
		logging.String("failure_kind", string(kind)),
		logging.Error(handlerErr),
	}
	if status == queue.StatusFailed {
		w.failOrigin(ctx, logger, item, req.Message)
		attrs = append(attrs,
			logging.Alert("item_failed"),
			logging.String(logging.FieldErrorHint, "fix the input or the stage command, then retry the item"),
		)
		logging.ErrorWithContext(logger, "item failed", "item_failed", attrs...)
		return
	}
	attrs = append(attrs,
		logging.String(logging.FieldErrorHint, "transient failure; the item will be retried"),
		logging.String(logging.FieldImpact, "item processing delayed"),
	)
	logging.WarnWithContext(logger, "item attempt failed", "item_retry", attrs...)
}
