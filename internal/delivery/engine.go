package delivery

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"pharmabill/internal/backoff"
	"pharmabill/internal/domain"
	"pharmabill/internal/observability"
	"pharmabill/internal/store"
	"pharmabill/internal/util"
)

const DeadLetterReason = "Max retry attempts exceeded"

type Store interface {
	InsertDelivery(ctx context.Context, in store.DeliveryInsert) error
	GetDelivery(ctx context.Context, id string) (store.Delivery, bool, error)
	ClaimDelivery(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error)
	MarkDeliveryRetrying(ctx context.Context, in store.DeliveryRetryUpdate) error
	MarkDeliveryDelivered(ctx context.Context, id string, attempts int, now time.Time) error
	MarkDeliveryFailed(ctx context.Context, in store.DeliveryFailUpdate) error
	MarkDeliveryDeadLetter(ctx context.Context, id string, now time.Time) error
	InsertDeadLetter(ctx context.Context, in store.DeadLetterInsert) error
}

type Attempter interface {
	Attempt(ctx context.Context, req AttemptRequest) (int, error)
}

// Engine drives the per-delivery state machine
// pending -> retrying -> {delivered | dead_letter}. Each delivery runs its
// attempt loop on the caller's goroutine and sleeps its own backoff; distinct
// deliveries never share state.
type Engine struct {
	Store       Store
	Exec        Attempter
	Policy      backoff.Policy
	MaxAttempts int
	IDGen       func() string

	// ClaimWindow is how long a retrying delivery may go without a status
	// update before another worker may reclaim it. Must exceed the longest
	// backoff sleep plus one attempt, or a live loop gets stolen.
	ClaimWindow time.Duration
}

func (e *Engine) claimWindow() time.Duration {
	if e.ClaimWindow > 0 {
		return e.ClaimWindow
	}
	return e.Policy.Delay(e.MaxAttempts) + 5*time.Minute
}

// Submit validates the request and creates the pending record. Malformed
// target or payload is rejected here, before any attempt exists.
func (e *Engine) Submit(ctx context.Context, req domain.SubmitWebhookRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id := e.IDGen()
	err := e.Store.InsertDelivery(ctx, store.DeliveryInsert{
		ID:        id,
		TenantID:  req.TenantID,
		TargetURL: req.TargetURL,
		EventName: req.EventName,
		Payload:   req.Payload,
		Status:    string(domain.DeliveryPending),
		Now:       util.NowUTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Deliver runs the bounded attempt loop for an already-submitted delivery.
// It is the worker-side entry point and is safe to call again on queue
// redelivery: terminal deliveries are skipped, a delivery held by a live
// loop loses the claim, and a stale reclaim resumes from the stored attempt
// counter instead of restarting at 1.
func (e *Engine) Deliver(ctx context.Context, deliveryID string) error {
	d, found, err := e.Store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !found {
		slog.Warn("delivery job for unknown record", "delivery_id", deliveryID)
		return nil
	}
	switch domain.DeliveryStatus(d.Status) {
	case domain.DeliveryDelivered, domain.DeliveryFailed, domain.DeliveryDeadLetter:
		return nil
	}

	now := util.NowUTC()
	claimed, err := e.Store.ClaimDelivery(ctx, d.ID, now, e.claimWindow())
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("delivery held by another worker, skipping", "delivery_id", deliveryID)
		return nil
	}

	req := AttemptRequest{
		DeliveryID: d.ID,
		TargetURL:  d.TargetURL,
		EventName:  d.EventName,
		Payload:    d.Payload,
	}

	// reclaimed after a crash that had already spent the whole budget
	if d.Attempts >= e.MaxAttempts {
		if err := e.Store.MarkDeliveryFailed(ctx, store.DeliveryFailUpdate{
			ID: d.ID, Attempts: d.Attempts, LastError: d.LastError, Now: now,
		}); err != nil {
			return err
		}
		return e.escalate(ctx, d.ID, d.TenantID, req, now)
	}

	_, err = e.run(ctx, d.ID, d.TenantID, req, true, d.Attempts+1)
	return err
}

// Resubmit is the dead-letter path: a brand-new delivery record with a fresh
// attempt counter, run to completion without escalating back into the DLQ on
// a second exhaustion.
func (e *Engine) Resubmit(ctx context.Context, req domain.SubmitWebhookRequest) (deliveredID string, delivered bool, err error) {
	id, err := e.Submit(ctx, req)
	if err != nil {
		return "", false, err
	}
	delivered, err = e.run(ctx, id, req.TenantID, AttemptRequest{
		DeliveryID: id,
		TargetURL:  req.TargetURL,
		EventName:  req.EventName,
		Payload:    req.Payload,
	}, false, 1)
	return id, delivered, err
}

func (e *Engine) run(ctx context.Context, id, tenantID string, req AttemptRequest, escalate bool, startAttempt int) (bool, error) {
	for attempt := startAttempt; attempt <= e.MaxAttempts; attempt++ {
		start := time.Now()
		httpStatus, attemptErr := e.Exec.Attempt(ctx, req)
		observability.DeliveryLatency.Observe(time.Since(start).Seconds())

		if attemptErr == nil {
			observability.DeliveryAttempts.WithLabelValues("ok", strconv.Itoa(httpStatus)).Inc()
			slog.Info("webhook delivered",
				"delivery_id", id,
				"target", req.TargetURL,
				"event", req.EventName,
				"attempt", attempt,
				"http_status", httpStatus,
			)
			if err := e.Store.MarkDeliveryDelivered(ctx, id, attempt, util.NowUTC()); err != nil {
				return true, err
			}
			return true, nil
		}

		observability.DeliveryAttempts.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()
		slog.Warn("webhook attempt failed",
			"delivery_id", id,
			"target", req.TargetURL,
			"event", req.EventName,
			"attempt", attempt,
			"max_attempts", e.MaxAttempts,
			"err", attemptErr,
		)

		if attempt == e.MaxAttempts {
			now := util.NowUTC()
			if err := e.Store.MarkDeliveryFailed(ctx, store.DeliveryFailUpdate{
				ID: id, Attempts: attempt, LastError: attemptErr.Error(), Now: now,
			}); err != nil {
				return false, err
			}
			if escalate {
				if err := e.escalate(ctx, id, tenantID, req, now); err != nil {
					return false, err
				}
			}
			return false, nil
		}

		wait := e.Policy.Delay(attempt)
		if err := e.Store.MarkDeliveryRetrying(ctx, store.DeliveryRetryUpdate{
			ID:          id,
			Attempts:    attempt,
			LastError:   attemptErr.Error(),
			NextRetryAt: util.NowUTC().Add(wait),
			Now:         util.NowUTC(),
		}); err != nil {
			return false, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return false, nil
}

func (e *Engine) escalate(ctx context.Context, id, tenantID string, req AttemptRequest, now time.Time) error {
	if err := e.Store.InsertDeadLetter(ctx, store.DeadLetterInsert{
		ID:         util.NewDeadLetterID(),
		Kind:       "webhook",
		DeliveryID: id,
		TenantID:   tenantID,
		TargetURL:  req.TargetURL,
		EventName:  req.EventName,
		Payload:    req.Payload,
		Reason:     DeadLetterReason,
		Now:        now,
	}); err != nil {
		return err
	}
	if err := e.Store.MarkDeliveryDeadLetter(ctx, id, now); err != nil {
		return err
	}
	observability.DeadLetters.Inc()
	slog.Warn("webhook escalated to dead letter queue",
		"delivery_id", id,
		"target", req.TargetURL,
		"event", req.EventName,
	)
	return nil
}
