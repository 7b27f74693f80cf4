package application

import (
	"context"
	"errors"
	"time"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// AggregationEngine computes per-seller unsettled earnings for a month.
// It only reads from the ledger.
type AggregationEngine struct {
	ledger settlement.OrderLedger
	loc    *time.Location
}

// NewAggregationEngine constructs the engine. A nil location means server local time.
func NewAggregationEngine(ledger settlement.OrderLedger, loc *time.Location) (*AggregationEngine, error) {
	if ledger == nil {
		return nil, errors.New("aggregation engine: nil ledger")
	}
	if loc == nil {
		loc = time.Local
	}
	return &AggregationEngine{ledger: ledger, loc: loc}, nil
}

// Window returns the inclusive settlement window for month.
func (e *AggregationEngine) Window(month settlement.Month) settlement.Window {
	return month.Window(e.loc)
}

// Aggregate returns one row per seller with unsettled items delivered in month.
func (e *AggregationEngine) Aggregate(ctx context.Context, month settlement.Month) ([]settlement.SellerSettlement, error) {
	if month.IsZero() {
		return nil, settlement.ErrInvalidMonth
	}
	items, err := e.ledger.ListUnsettledItems(ctx, e.Window(month))
	if err != nil {
		return nil, err
	}
	return settlement.AggregateBySeller(items), nil
}
