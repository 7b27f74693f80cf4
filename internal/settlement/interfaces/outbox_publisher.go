package interfaces

import (
	"context"
	"fmt"

	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/settlement/application"
)

// OutboxPublisher writes batch events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// PublishBatchFinalized writes event to outbox. The event id is derived from
// the batch state so a replayed run does not produce a second delivery.
func (p *OutboxPublisher) PublishBatchFinalized(ctx context.Context, event application.PayoutBatchFinalized) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	ctx = eventing.WithEventID(ctx, BatchEventID(event))
	ctx = eventing.WithCorrelationID(ctx, event.BatchID)
	return p.publisher.Publish(ctx, event)
}

// BatchEventID identifies one state of one batch attempt.
func BatchEventID(event application.PayoutBatchFinalized) string {
	return fmt.Sprintf("payout-batch:%s:%d:%s", event.BatchID, event.Attempts, event.Status)
}
