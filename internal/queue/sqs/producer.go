package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"pharmabill/internal/delivery"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

func (p *Producer) EnqueueDelivery(ctx context.Context, job delivery.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// FIFO grouping per tenant keeps one tenant's burst from starving the
	// queue; dedup by delivery id absorbs double-submits.
	groupID := job.TenantID
	if groupID == "" {
		groupID = "default"
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(job.DeliveryID),
	})
	return err
}

func str(s string) *string { return &s }
