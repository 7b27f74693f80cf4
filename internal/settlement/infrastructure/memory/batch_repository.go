package memory

import (
	"context"
	"sort"
	"sync"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// BatchRepository is an in-memory payout batch store.
type BatchRepository struct {
	mu          sync.RWMutex
	data        map[string]*settlement.PayoutBatch
	sellerMonth map[string]string
}

// NewBatchRepository constructs a repository.
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		data:        make(map[string]*settlement.PayoutBatch),
		sellerMonth: make(map[string]string),
	}
}

// Create inserts a batch, enforcing one batch per seller month.
func (r *BatchRepository) Create(ctx context.Context, batch *settlement.PayoutBatch) error {
	_ = ctx
	if batch == nil {
		return settlement.ErrNilBatch
	}
	if batch.ID == "" {
		return settlement.ErrEmptyBatchID
	}
	key := sellerMonthKey(batch.SellerID, batch.Month)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sellerMonth[key]; ok {
		return settlement.ErrBatchExists
	}
	if _, ok := r.data[batch.ID]; ok {
		return settlement.ErrBatchExists
	}
	r.data[batch.ID] = batch.Clone()
	r.sellerMonth[key] = batch.ID
	return nil
}

// Update overwrites an existing batch.
func (r *BatchRepository) Update(ctx context.Context, batch *settlement.PayoutBatch) error {
	_ = ctx
	if batch == nil {
		return settlement.ErrNilBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[batch.ID]; !ok {
		return settlement.ErrBatchNotFound
	}
	r.data[batch.ID] = batch.Clone()
	return nil
}

// GetByID loads a batch.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*settlement.PayoutBatch, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[id].Clone(), nil
}

// FindBySellerMonth loads the batch for a seller month.
func (r *BatchRepository) FindBySellerMonth(ctx context.Context, sellerID, month string) (*settlement.PayoutBatch, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sellerMonth[sellerMonthKey(sellerID, month)]
	if !ok {
		return nil, nil
	}
	return r.data[id].Clone(), nil
}

// ListBySeller returns batches ordered by month.
func (r *BatchRepository) ListBySeller(ctx context.Context, sellerID, month string) ([]settlement.PayoutBatch, error) {
	_ = ctx
	r.mu.RLock()
	var result []settlement.PayoutBatch
	for _, batch := range r.data {
		if batch.SellerID != sellerID {
			continue
		}
		if month != "" && batch.Month != month {
			continue
		}
		result = append(result, *batch.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].Month == result[j].Month {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Month < result[j].Month
	})
	return result, nil
}

// All returns every stored batch, for assertions.
func (r *BatchRepository) All() []settlement.PayoutBatch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]settlement.PayoutBatch, 0, len(r.data))
	for _, batch := range r.data {
		result = append(result, *batch.Clone())
	}
	return result
}

func sellerMonthKey(sellerID, month string) string {
	return sellerID + "|" + month
}
