package settlement

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatusFailed is recorded when a dispatch attempt errors.
const TransactionStatusFailed = "failed"

// PayoutTransaction is an append-only audit record of one dispatch attempt.
type PayoutTransaction struct {
	ID               string          `json:"id"`
	BatchID          string          `json:"batchId"`
	SellerID         string          `json:"sellerId"`
	Month            string          `json:"month"`
	OrderItemIDs     []string        `json:"orderItemIds"`
	GrossSales       decimal.Decimal `json:"grossSales"`
	Commission       decimal.Decimal `json:"commission"`
	NetPayout        decimal.Decimal `json:"netPayout"`
	AmountMinor      int64           `json:"amountMinor"`
	Status           string          `json:"status"`
	ProviderPayoutID string          `json:"providerPayoutId,omitempty"`
	ProviderResponse json.RawMessage `json:"providerResponse,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	SettledAt        time.Time       `json:"settledAt"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// NewTransactionFromBatch copies the batch numbers into a transaction record.
func NewTransactionFromBatch(id string, b *PayoutBatch, now time.Time) PayoutTransaction {
	return PayoutTransaction{
		ID:           id,
		BatchID:      b.ID,
		SellerID:     b.SellerID,
		Month:        b.Month,
		OrderItemIDs: append([]string(nil), b.OrderItemIDs...),
		GrossSales:   b.GrossSales,
		Commission:   b.Commission,
		NetPayout:    b.NetPayout,
		SettledAt:    now,
		CreatedAt:    now,
	}
}
