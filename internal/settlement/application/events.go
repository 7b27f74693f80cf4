package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PayoutBatchFinalized is emitted when a batch reaches a dispatch outcome
// or a provider status change.
type PayoutBatchFinalized struct {
	BatchID          string          `json:"batchId"`
	SellerID         string          `json:"sellerId"`
	Month            string          `json:"month"`
	Status           string          `json:"status"`
	NetPayout        decimal.Decimal `json:"netPayout"`
	ProviderPayoutID string          `json:"providerPayoutId,omitempty"`
	Attempts         int             `json:"attempts"`
	FailureReason    string          `json:"failureReason,omitempty"`
	OccurredAt       time.Time       `json:"occurredAt"`
}

// BatchEventPublisher emits batch events.
type BatchEventPublisher interface {
	PublishBatchFinalized(ctx context.Context, event PayoutBatchFinalized) error
}
