// Package deadletter drains permanently-failed webhook deliveries back
// through the retry engine and enforces retention on resolved entries.
package deadletter

import (
	"context"
	"log/slog"
	"time"

	"pharmabill/internal/domain"
	"pharmabill/internal/observability"
	"pharmabill/internal/store"
	"pharmabill/internal/util"
)

type Store interface {
	ListPendingDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
	MarkDeadLetterReprocessed(ctx context.Context, id string, now time.Time) (bool, error)
	CountPendingDeadLetters(ctx context.Context) (int, error)
	DeleteReprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Engine interface {
	Resubmit(ctx context.Context, req domain.SubmitWebhookRequest) (string, bool, error)
}

type Reprocessor struct {
	Store  Store
	Engine Engine

	// Retention window for entries already reprocessed; pending entries are
	// never deleted, only counted against AlertThreshold.
	Retention      time.Duration
	AlertThreshold int
}

type Report struct {
	Selected    int
	Reprocessed int
	StillFailed int
}

// Reprocess drains up to batchSize pending entries oldest-first. Each entry
// is resubmitted from its own payload copy; an entry whose resubmission
// exhausts retries again simply stays pending for a future drain.
func (r *Reprocessor) Reprocess(ctx context.Context, batchSize int) (Report, error) {
	entries, err := r.Store.ListPendingDeadLetters(ctx, batchSize)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Selected: len(entries)}
	for _, entry := range entries {
		newID, delivered, err := r.Engine.Resubmit(ctx, domain.SubmitWebhookRequest{
			TenantID:  entry.TenantID,
			TargetURL: entry.TargetURL,
			EventName: entry.EventName,
			Payload:   entry.Payload,
		})
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			observability.DeadLetterReprocess.WithLabelValues("error").Inc()
			slog.Error("dead letter resubmit failed", "dead_letter_id", entry.ID, "err", err)
			rep.StillFailed++
			continue
		}
		if !delivered {
			observability.DeadLetterReprocess.WithLabelValues("still_failing").Inc()
			rep.StillFailed++
			continue
		}

		if _, err := r.Store.MarkDeadLetterReprocessed(ctx, entry.ID, util.NowUTC()); err != nil {
			slog.Error("mark dead letter reprocessed failed", "dead_letter_id", entry.ID, "err", err)
			rep.StillFailed++
			continue
		}
		observability.DeadLetterReprocess.WithLabelValues("ok").Inc()
		slog.Info("dead letter reprocessed",
			"dead_letter_id", entry.ID,
			"original_delivery_id", entry.DeliveryID,
			"new_delivery_id", newID,
			"target", entry.TargetURL,
			"event", entry.EventName,
		)
		rep.Reprocessed++
	}
	return rep, nil
}

// Cleanup deletes reprocessed entries past the retention window and checks
// the pending backlog against the alert threshold.
func (r *Reprocessor) Cleanup(ctx context.Context) error {
	if r.Retention > 0 {
		n, err := r.Store.DeleteReprocessedBefore(ctx, util.NowUTC().Add(-r.Retention))
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("dead letter retention cleanup", "deleted", n)
		}
	}

	pending, err := r.Store.CountPendingDeadLetters(ctx)
	if err != nil {
		return err
	}
	observability.DeadLettersPending.Set(float64(pending))
	if r.AlertThreshold > 0 && pending >= r.AlertThreshold {
		slog.Warn("dead letter backlog above alert threshold",
			"pending", pending,
			"threshold", r.AlertThreshold,
		)
	}
	return nil
}
