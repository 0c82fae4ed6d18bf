package delivery

import (
	"context"

	"pharmabill/internal/domain"
	"pharmabill/internal/observability"
)

type Queue interface {
	EnqueueDelivery(ctx context.Context, job Job) error
}

// Job is what travels over the queue between the API and the worker. The
// payload stays in the database; the job only carries the id.
type Job struct {
	DeliveryID string `json:"deliveryId"`
	TenantID   string `json:"tenantId,omitempty"`
}

// Intake is the API-side half of the engine: create the pending record, then
// hand the delivery to the worker fleet via the queue.
type Intake struct {
	Engine *Engine
	Queue  Queue
}

func (i *Intake) CreateAndEnqueue(ctx context.Context, req domain.SubmitWebhookRequest) (domain.SubmitWebhookResponse, error) {
	id, err := i.Engine.Submit(ctx, req)
	if err != nil {
		return domain.SubmitWebhookResponse{}, err
	}

	if err := i.Queue.EnqueueDelivery(ctx, Job{DeliveryID: id, TenantID: req.TenantID}); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return domain.SubmitWebhookResponse{}, err
	}
	observability.Enqueues.WithLabelValues("ok").Inc()

	return domain.SubmitWebhookResponse{DeliveryID: id, Status: string(domain.DeliveryPending)}, nil
}
