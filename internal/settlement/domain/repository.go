package settlement

import (
	"context"
	"time"
)

// OrderLedger is the order store consumed by settlement.
type OrderLedger interface {
	// ListUnsettledItems returns unsettled items of delivered, paid orders
	// whose delivery time falls inside the window.
	ListUnsettledItems(ctx context.Context, window Window) ([]LineItem, error)
	// MarkItemsSettled flips exactly the given items to settled and returns
	// how many rows changed. Items already settled are left untouched.
	MarkItemsSettled(ctx context.Context, itemIDs []string, settledAt time.Time) (int, error)
}

// BatchRepository persists payout batches. Batches are never deleted.
type BatchRepository interface {
	// Create inserts a new batch; ErrBatchExists when (month, seller) is taken.
	Create(ctx context.Context, batch *PayoutBatch) error
	Update(ctx context.Context, batch *PayoutBatch) error
	GetByID(ctx context.Context, id string) (*PayoutBatch, error)
	FindBySellerMonth(ctx context.Context, sellerID, month string) (*PayoutBatch, error)
	// ListBySeller lists a seller's batches, optionally filtered to one month.
	ListBySeller(ctx context.Context, sellerID, month string) ([]PayoutBatch, error)
}

// TransactionRepository appends payout transactions.
type TransactionRepository interface {
	Append(ctx context.Context, tx PayoutTransaction) error
	ListByBatch(ctx context.Context, batchID string) ([]PayoutTransaction, error)
}

// SellerDirectory resolves seller payout destinations.
type SellerDirectory interface {
	// GetSeller returns nil, nil when the seller is unknown.
	GetSeller(ctx context.Context, sellerID string) (*Seller, error)
}
