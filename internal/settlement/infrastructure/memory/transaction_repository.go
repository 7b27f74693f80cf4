package memory

import (
	"context"
	"sync"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// TransactionRepository is an append-only in-memory transaction log.
type TransactionRepository struct {
	mu  sync.RWMutex
	log []settlement.PayoutTransaction
}

// NewTransactionRepository constructs a repository.
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

// Append records a transaction.
func (r *TransactionRepository) Append(ctx context.Context, tx settlement.PayoutTransaction) error {
	_ = ctx
	if tx.BatchID == "" {
		return settlement.ErrEmptyBatchID
	}
	tx.OrderItemIDs = append([]string(nil), tx.OrderItemIDs...)
	r.mu.Lock()
	r.log = append(r.log, tx)
	r.mu.Unlock()
	return nil
}

// ListByBatch returns transactions for a batch in insertion order.
func (r *TransactionRepository) ListByBatch(ctx context.Context, batchID string) ([]settlement.PayoutTransaction, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []settlement.PayoutTransaction
	for _, tx := range r.log {
		if tx.BatchID == batchID {
			result = append(result, tx)
		}
	}
	return result, nil
}

// Len returns the number of recorded transactions.
func (r *TransactionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}
