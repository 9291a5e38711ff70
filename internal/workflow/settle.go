package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"smoothbdr/internal/logging"
	"smoothbdr/internal/quality"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/stage"
)

// settle maps an outcome onto Ledger writes. Every write that creates or
// finalizes another item happens before the source item is settled, so a
// crash in between leaves the source leased and the whole step is retried.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger, item *queue.Item, out stage.Outcome) (queue.Status, error) {
	switch out.Kind {
	case stage.KindAdvance:
		return w.settleAdvance(ctx, logger, item, out)
	case stage.KindRequeue:
		status, attempts, err := w.store.Fail(ctx, w.stage.Queue, item.ID, queue.FailRequest{
			Owner:      w.id,
			Message:    out.Reason,
			Kind:       queue.FailureRequeue,
			RetryDelay: w.stage.RetryDelay,
		})
		if err == nil {
			logger.Debug("item requeued", logging.Int("attempts", attempts))
		}
		if status == queue.StatusFailed {
			w.failOrigin(ctx, logger, item, out.Reason)
		}
		return status, err
	case stage.KindSkip:
		return w.complete(ctx, item, queue.StatusSkipped, out, out.Reason)
	case stage.KindExhaust:
		if err := w.finalizeOrigin(ctx, logger, item, queue.StatusExhausted, out, out.Reason); err != nil {
			return "", err
		}
		return w.complete(ctx, item, queue.StatusExhausted, out, out.Reason)
	case stage.KindContinue:
		return w.complete(ctx, item, queue.StatusPending, out, "")
	default:
		return "", fmt.Errorf("unknown outcome %q", out.Kind)
	}
}

func (w *Worker) settleAdvance(ctx context.Context, logger *slog.Logger, item *queue.Item, out stage.Outcome) (queue.Status, error) {
	if w.stage.Gate != nil {
		score := out.ScoreOr(w.stage.DefaultScore)
		out.Score = &score
		if w.stage.Gate.Decide(score) == quality.VerdictLowQuality {
			return w.settleLowQuality(ctx, logger, item, out, *w.stage.Gate)
		}
	}

	next, err := w.stage.routeFor(item)
	if err != nil {
		return "", err
	}
	if next.Queue != "" {
		payloads := out.Next
		if len(payloads) == 0 {
			merged, err := mergePayload(item.Payload, out.Fields)
			if err != nil {
				return "", err
			}
			payloads = []json.RawMessage{merged}
		}
		for seq, payload := range payloads {
			status := queue.StatusPending
			if next.Hold {
				status = queue.StatusAwaitingApproval
			}
			if err := w.enqueue(ctx, logger, next.Queue, item, seq, payload, out.Score, next.MaxAttempts, status); err != nil {
				return "", err
			}
		}
	}
	if err := w.finalizeOrigin(ctx, logger, item, queue.StatusCompleted, out, ""); err != nil {
		return "", err
	}
	return w.complete(ctx, item, queue.StatusCompleted, out, "")
}

// settleLowQuality parks the item as low_quality and hands a copy to the
// deepening queue. Without a deepening route the item is exhausted.
func (w *Worker) settleLowQuality(ctx context.Context, logger *slog.Logger, item *queue.Item, out stage.Outcome, gate quality.Gate) (queue.Status, error) {
	reason := gate.Reason(*out.Score)
	if w.stage.Deepening.Queue == "" {
		return w.complete(ctx, item, queue.StatusExhausted, out, reason+"; no deepening configured")
	}
	merged, err := mergePayload(item.Payload, out.Fields)
	if err != nil {
		return "", err
	}
	if err := w.enqueue(ctx, logger, w.stage.Deepening.Queue, item, 0, merged, out.Score,
		w.stage.Deepening.MaxAttempts, queue.StatusPending); err != nil {
		return "", err
	}
	return w.complete(ctx, item, queue.StatusLowQuality, out, reason)
}

func (w *Worker) enqueue(ctx context.Context, logger *slog.Logger, target string, src *queue.Item, seq int,
	payload json.RawMessage, score *float64, maxAttempts int, status queue.Status) error {
	created, isNew, err := w.store.Enqueue(ctx, target, queue.NewItem{
		LeadRef:      src.LeadRef,
		Payload:      payload,
		Priority:     src.Priority,
		MaxAttempts:  maxAttempts,
		QualityScore: score,
		Source:       &queue.SourceRef{Queue: w.stage.Queue, ItemID: src.ID, Seq: seq},
		Status:       status,
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", target, err)
	}
	if !isNew {
		logger.Info("downstream item already present",
			logging.String(logging.FieldEventType, "downstream_duplicate"),
			logging.String("downstream", created.Ref()),
		)
		return nil
	}
	logger.Debug("downstream item created", logging.String("downstream", created.Ref()), logging.String("status", string(status)))
	return nil
}

func (w *Worker) complete(ctx context.Context, item *queue.Item, status queue.Status, out stage.Outcome, reason string) (queue.Status, error) {
	settled, err := w.store.Complete(ctx, w.stage.Queue, item.ID, queue.Completion{
		Status:    status,
		Owner:     w.id,
		Fields:    out.Fields,
		Score:     out.Score,
		Reason:    reason,
		Deepening: out.Deepening,
	})
	if err != nil {
		return "", err
	}
	return settled.Status, nil
}

// finalizeOrigin settles the low-quality item a deepening item was copied
// from. An origin that an operator already moved on is left alone.
func (w *Worker) finalizeOrigin(ctx context.Context, logger *slog.Logger, item *queue.Item, status queue.Status, out stage.Outcome, reason string) error {
	if !w.stage.FinalizeOrigin || item.Source == nil {
		return nil
	}
	_, err := w.store.Complete(ctx, item.Source.Queue, item.Source.ItemID, queue.Completion{
		Status: status,
		From:   queue.StatusLowQuality,
		Fields: out.Fields,
		Score:  out.Score,
		Reason: reason,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrNotActive), errors.Is(err, queue.ErrNotFound):
		logging.WarnWithContext(logger, "origin item not finalized", "origin_skipped",
			logging.String("origin", fmt.Sprintf("%s#%d", item.Source.Queue, item.Source.ItemID)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "origin was changed outside the deepening stage"),
			logging.String(logging.FieldImpact, "origin keeps its current status"),
		)
		return nil
	default:
		return fmt.Errorf("finalize origin: %w", err)
	}
}

// failOrigin marks the origin of a deepening item failed once the deepening
// item itself has failed terminally, so the origin does not stay low_quality.
func (w *Worker) failOrigin(ctx context.Context, logger *slog.Logger, item *queue.Item, cause string) {
	reason := "deepening failed"
	if cause != "" {
		reason += ": " + cause
	}
	if err := w.finalizeOrigin(ctx, logger, item, queue.StatusFailed, stage.Outcome{}, reason); err != nil {
		logging.ErrorWithContext(logger, "origin item not failed", "origin_fail_not_recorded",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry the deepening item or settle the origin by hand"),
		)
	}
}
