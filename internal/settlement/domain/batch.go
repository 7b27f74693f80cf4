package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a payout batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusPaid       BatchStatus = "paid"
	BatchStatusFailed     BatchStatus = "failed"
)

// OutcomeSkippedNoBank marks a seller skipped for lack of a payout account.
// It is an outcome only and never stored on a batch.
const OutcomeSkippedNoBank = "skipped_no_bank"

// ParseBatchStatus validates a stored status string.
func ParseBatchStatus(value string) (BatchStatus, bool) {
	switch BatchStatus(value) {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusQueued, BatchStatusPaid, BatchStatusFailed:
		return BatchStatus(value), true
	default:
		return "", false
	}
}

// PayoutBatch is one settlement attempt for one seller for one month.
type PayoutBatch struct {
	ID               string          `json:"id"`
	Month            string          `json:"month"`
	SellerID         string          `json:"sellerId"`
	GrossSales       decimal.Decimal `json:"grossSales"`
	Commission       decimal.Decimal `json:"commission"`
	NetPayout        decimal.Decimal `json:"netPayout"`
	OrderItemIDs     []string        `json:"orderItemIds"`
	OrderIDs         []string        `json:"orderIds"`
	Status           BatchStatus     `json:"status"`
	ProviderPayoutID string          `json:"providerPayoutId,omitempty"`
	IdempotencyKey   string          `json:"idempotencyKey"`
	Attempts         int             `json:"attempts"`
	FailureReason    string          `json:"failureReason,omitempty"`
	SettledAt        *time.Time      `json:"settledAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewPayoutBatch opens a batch in processing state from an aggregated row.
// SettledAt records when the settlement attempt was initiated.
func NewPayoutBatch(id string, month Month, row SellerSettlement, now time.Time) (*PayoutBatch, error) {
	if id == "" {
		return nil, ErrEmptyBatchID
	}
	if row.SellerID == "" {
		return nil, ErrEmptySellerID
	}
	if month.IsZero() {
		return nil, ErrInvalidMonth
	}
	if row.GrossSales.IsNegative() || row.Commission.IsNegative() {
		return nil, ErrNegativeValue
	}
	b := &PayoutBatch{
		ID:        id,
		Month:     month.String(),
		SellerID:  row.SellerID,
		Status:    BatchStatusProcessing,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.applyRow(row, now)
	b.IdempotencyKey = BuildIdempotencyKey(month, row.SellerID, 1)
	return b, nil
}

// BuildIdempotencyKey derives the provider idempotency key for a seller's
// month. The first generation is settle:<month>:<seller>; later generations,
// issued only after a definitive rejection, carry the attempt that first
// uses them.
func BuildIdempotencyKey(month Month, sellerID string, generation int) string {
	if generation <= 1 {
		return fmt.Sprintf("settle:%s:%s", month.String(), sellerID)
	}
	return fmt.Sprintf("settle:%s:%s:%d", month.String(), sellerID, generation)
}

func (b *PayoutBatch) applyRow(row SellerSettlement, now time.Time) {
	b.GrossSales = row.GrossSales
	b.Commission = row.Commission
	b.NetPayout = row.GrossSales.Sub(row.Commission)
	b.OrderItemIDs = append([]string(nil), row.ItemIDs...)
	b.OrderIDs = append([]string(nil), row.OrderIDs...)
	settledAt := now
	b.SettledAt = &settledAt
}

// RotateIdempotencyKey issues a fresh key for the next attempt of a failed
// batch. Call it only when the provider definitively refused the request
// made under the current key.
func (b *PayoutBatch) RotateIdempotencyKey(month Month) error {
	if b.Status != BatchStatusFailed {
		return fmt.Errorf("%w: rotate key in %s", ErrInvalidTransition, b.Status)
	}
	b.IdempotencyKey = BuildIdempotencyKey(month, b.SellerID, b.Attempts+1)
	return nil
}

// KeyRotated reports whether the key was rotated after the last attempt.
func (b *PayoutBatch) KeyRotated(month Month) bool {
	return b.IdempotencyKey == BuildIdempotencyKey(month, b.SellerID, b.Attempts+1)
}

// Reopen moves a failed batch back to processing. With a rotated key the
// batch takes the fresh numbers from row. Otherwise the previous request
// may still have been accepted, so the batch keeps its captured items and
// amount and the retry repeats that request under the same key.
func (b *PayoutBatch) Reopen(month Month, row SellerSettlement, now time.Time) error {
	if b.Status != BatchStatusFailed {
		return fmt.Errorf("%w: reopen from %s", ErrInvalidTransition, b.Status)
	}
	rotated := b.KeyRotated(month)
	b.Status = BatchStatusProcessing
	b.Attempts++
	b.ProviderPayoutID = ""
	b.FailureReason = ""
	if rotated {
		b.applyRow(row, now)
	} else {
		settledAt := now
		b.SettledAt = &settledAt
	}
	b.UpdatedAt = now
	return nil
}

// IsDispatched reports whether the provider has accepted a payout for this batch.
func (b *PayoutBatch) IsDispatched() bool {
	if b == nil {
		return false
	}
	if b.ProviderPayoutID != "" {
		return true
	}
	switch b.Status {
	case BatchStatusPending, BatchStatusQueued, BatchStatusPaid:
		return true
	}
	return false
}

// AwaitingProvider reports whether the provider has not yet reached a final state.
func (b *PayoutBatch) AwaitingProvider() bool {
	if b == nil || b.ProviderPayoutID == "" {
		return false
	}
	switch b.Status {
	case BatchStatusPending, BatchStatusQueued, BatchStatusProcessing:
		return true
	}
	return false
}

// MarkDispatched records a provider-accepted payout.
func (b *PayoutBatch) MarkDispatched(status BatchStatus, providerPayoutID string, now time.Time) error {
	if b.Status != BatchStatusProcessing {
		return fmt.Errorf("%w: dispatch from %s", ErrInvalidTransition, b.Status)
	}
	switch status {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusQueued, BatchStatusPaid:
	default:
		return fmt.Errorf("%w: dispatch to %s", ErrInvalidTransition, status)
	}
	b.Status = status
	b.ProviderPayoutID = providerPayoutID
	b.FailureReason = ""
	b.UpdatedAt = now
	return nil
}

// MarkFailed records a failed dispatch or a provider-side failure.
func (b *PayoutBatch) MarkFailed(reason string, now time.Time) error {
	switch b.Status {
	case BatchStatusProcessing, BatchStatusPending, BatchStatusQueued:
	default:
		return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, b.Status)
	}
	b.Status = BatchStatusFailed
	b.FailureReason = reason
	b.UpdatedAt = now
	return nil
}

// ApplyProviderStatus moves an awaiting batch to the provider's latest state.
func (b *PayoutBatch) ApplyProviderStatus(status BatchStatus, now time.Time) error {
	if !b.AwaitingProvider() {
		return fmt.Errorf("%w: refresh from %s", ErrInvalidTransition, b.Status)
	}
	switch status {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusQueued, BatchStatusPaid:
		b.Status = status
	default:
		return fmt.Errorf("%w: refresh to %s", ErrInvalidTransition, status)
	}
	b.UpdatedAt = now
	return nil
}

// Clone returns a detached copy.
func (b *PayoutBatch) Clone() *PayoutBatch {
	if b == nil {
		return nil
	}
	c := *b
	c.OrderItemIDs = append([]string(nil), b.OrderItemIDs...)
	c.OrderIDs = append([]string(nil), b.OrderIDs...)
	if b.SettledAt != nil {
		t := *b.SettledAt
		c.SettledAt = &t
	}
	return &c
}
