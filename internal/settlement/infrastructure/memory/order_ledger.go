package memory

import (
	"context"
	"sync"
	"time"

	settlement "marketplace-settlement/internal/settlement/domain"
)

// OrderLedger is an in-memory order store.
type OrderLedger struct {
	mu     sync.RWMutex
	orders map[string]*settlement.Order
	order  []string
}

// NewOrderLedger constructs a ledger.
func NewOrderLedger() *OrderLedger {
	return &OrderLedger{orders: make(map[string]*settlement.Order)}
}

// Put stores or replaces an order.
func (l *OrderLedger) Put(order settlement.Order) {
	copy := cloneOrder(order)
	for i := range copy.Items {
		copy.Items[i].OrderID = copy.ID
	}
	l.mu.Lock()
	if _, ok := l.orders[order.ID]; !ok {
		l.order = append(l.order, order.ID)
	}
	l.orders[order.ID] = &copy
	l.mu.Unlock()
}

// Item returns a copy of a line item.
func (l *OrderLedger) Item(itemID string) (settlement.LineItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		for _, item := range l.orders[id].Items {
			if item.ID == itemID {
				return item, true
			}
		}
	}
	return settlement.LineItem{}, false
}

// ListUnsettledItems returns unsettled items of eligible orders.
func (l *OrderLedger) ListUnsettledItems(ctx context.Context, window settlement.Window) ([]settlement.LineItem, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []settlement.LineItem
	for _, id := range l.order {
		order := l.orders[id]
		if !order.IsEligible(window) {
			continue
		}
		for _, item := range order.Items {
			if item.IsSettledToSeller {
				continue
			}
			result = append(result, item)
		}
	}
	return result, nil
}

// MarkItemsSettled flips only the listed unsettled items.
func (l *OrderLedger) MarkItemsSettled(ctx context.Context, itemIDs []string, settledAt time.Time) (int, error) {
	_ = ctx
	if len(itemIDs) == 0 {
		return 0, nil
	}
	wanted := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	changed := 0
	for _, id := range l.order {
		order := l.orders[id]
		for i := range order.Items {
			item := &order.Items[i]
			if _, ok := wanted[item.ID]; !ok || item.IsSettledToSeller {
				continue
			}
			at := settledAt
			item.IsSettledToSeller = true
			item.SettledAt = &at
			changed++
		}
	}
	return changed, nil
}

func cloneOrder(order settlement.Order) settlement.Order {
	copy := order
	copy.Items = append([]settlement.LineItem(nil), order.Items...)
	return copy
}
