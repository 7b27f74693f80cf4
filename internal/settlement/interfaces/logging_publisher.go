package interfaces

import (
	"context"
	"errors"
	"log/slog"

	"marketplace-settlement/internal/settlement/application"
)

// LoggingPublisher logs batch events. It stands in for the outbox when no
// database-backed eventing is configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishBatchFinalized logs the event.
func (p *LoggingPublisher) PublishBatchFinalized(ctx context.Context, event application.PayoutBatchFinalized) error {
	if p == nil {
		return errors.New("settlement publisher: nil publisher")
	}
	p.logger.InfoContext(ctx, "payout batch finalized",
		"batch_id", event.BatchID,
		"seller_id", event.SellerID,
		"month", event.Month,
		"status", event.Status,
		"net_payout", event.NetPayout.String(),
		"attempts", event.Attempts,
	)
	return nil
}
