package memory

import (
	"context"
	"sync"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// SellerDirectory is an in-memory seller lookup.
type SellerDirectory struct {
	mu      sync.RWMutex
	sellers map[string]settlement.Seller
}

// NewSellerDirectory constructs a directory.
func NewSellerDirectory(sellers ...settlement.Seller) *SellerDirectory {
	d := &SellerDirectory{sellers: make(map[string]settlement.Seller)}
	for _, s := range sellers {
		d.sellers[s.ID] = s
	}
	return d
}

// Put stores or replaces a seller.
func (d *SellerDirectory) Put(seller settlement.Seller) {
	d.mu.Lock()
	d.sellers[seller.ID] = seller
	d.mu.Unlock()
}

// GetSeller returns a seller or nil when unknown.
func (d *SellerDirectory) GetSeller(ctx context.Context, sellerID string) (*settlement.Seller, error) {
	_ = ctx
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sellers[sellerID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
