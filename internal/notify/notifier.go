package notify

import "context"

// RunAlert summarizes a settlement run that needs operator attention.
type RunAlert struct {
	Month             string            `json:"month"`
	Failed            []SellerFailure   `json:"failed"`
	Skipped           []string          `json:"skipped,omitempty"`
	Settled           int               `json:"settled"`
	RecommendedAction string            `json:"recommended_action"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// SellerFailure names a seller whose payout did not go through.
type SellerFailure struct {
	SellerID string `json:"seller_id"`
	BatchID  string `json:"batch_id,omitempty"`
	Reason   string `json:"reason"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, alert RunAlert) error
}
