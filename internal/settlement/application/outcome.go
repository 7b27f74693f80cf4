package application

import (
	"encoding/json"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// Per-seller run results.
const (
	ResultDispatched        = "dispatched"
	ResultFailed            = "failed"
	ResultAlreadyDispatched = "already_dispatched"
	ResultSkippedNoBank     = settlement.OutcomeSkippedNoBank
	ResultError             = "error"
)

// Outcome is one seller's entry in a run result. Outcomes with a batch
// serialize as the batch plus result and note; the rest serialize as
// {sellerId, status, note}.
type Outcome struct {
	SellerID         string
	Status           string
	Result           string
	Note             string
	OutstandingItems int
	Batch            *settlement.PayoutBatch
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Batch == nil {
		return json.Marshal(struct {
			SellerID string `json:"sellerId"`
			Status   string `json:"status"`
			Result   string `json:"result"`
			Note     string `json:"note,omitempty"`
		}{o.SellerID, o.Status, o.Result, o.Note})
	}
	return json.Marshal(struct {
		*settlement.PayoutBatch
		Result           string `json:"result"`
		Note             string `json:"note,omitempty"`
		OutstandingItems int    `json:"outstandingItems,omitempty"`
	}{o.Batch, o.Result, o.Note, o.OutstandingItems})
}

// RunResult is the full itemized result of a settlement run.
type RunResult struct {
	Success bool      `json:"success"`
	Month   string    `json:"month"`
	Message string    `json:"message"`
	Batches []Outcome `json:"batches"`
}

// Counts tallies outcomes by result.
func (r RunResult) Counts() map[string]int {
	counts := make(map[string]int)
	for _, o := range r.Batches {
		counts[o.Result]++
	}
	return counts
}
