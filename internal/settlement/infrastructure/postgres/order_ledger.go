package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	settlement "marketplace-settlement/internal/settlement/domain"
)

const (
	defaultOrdersTable     = "orders"
	defaultOrderItemsTable = "order_items"
)

// OrderLedgerRepository reads and settles order items in Postgres.
type OrderLedgerRepository struct {
	db         DBTX
	ordersTbl  string
	itemsTable string
}

// LedgerOption configures the repository.
type LedgerOption func(*OrderLedgerRepository)

// WithOrdersTable overrides the orders table name.
func WithOrdersTable(table string) LedgerOption {
	return func(repo *OrderLedgerRepository) {
		if table != "" {
			repo.ordersTbl = table
		}
	}
}

// WithOrderItemsTable overrides the order items table name.
func WithOrderItemsTable(table string) LedgerOption {
	return func(repo *OrderLedgerRepository) {
		if table != "" {
			repo.itemsTable = table
		}
	}
}

// NewOrderLedgerRepository constructs a repository.
func NewOrderLedgerRepository(db DBTX, opts ...LedgerOption) *OrderLedgerRepository {
	repo := &OrderLedgerRepository{db: db, ordersTbl: defaultOrdersTable, itemsTable: defaultOrderItemsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ListUnsettledItems returns unsettled items of delivered, paid orders in the window.
func (r *OrderLedgerRepository) ListUnsettledItems(ctx context.Context, window settlement.Window) ([]settlement.LineItem, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("order ledger: nil db")
	}
	query := fmt.Sprintf(`
SELECT i.id, i.order_id, i.seller_id, i.final_price, i.quantity, i.commission
FROM %s i
JOIN %s o ON o.id = i.order_id
WHERE o.order_status = $1
	AND o.payment_status = $2
	AND o.delivered_at BETWEEN $3 AND $4
	AND i.is_settled_to_seller = false
ORDER BY i.seller_id ASC, o.delivered_at ASC, i.id ASC`, r.itemsTable, r.ordersTbl)

	rows, err := r.db.QueryContext(ctx, query,
		settlement.OrderStatusDelivered, settlement.PaymentStatusPaid, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("order ledger: list unsettled: %w", err)
	}
	defer rows.Close()

	var result []settlement.LineItem
	for rows.Next() {
		var item settlement.LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.SellerID, &item.FinalPrice, &item.Quantity, &item.Commission); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkItemsSettled flips exactly the given item ids.
func (r *OrderLedgerRepository) MarkItemsSettled(ctx context.Context, itemIDs []string, settledAt time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("order ledger: nil db")
	}
	if len(itemIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_settled_to_seller = true, settled_at = $1
WHERE id = ANY($2) AND is_settled_to_seller = false`, r.itemsTable)

	res, err := r.db.ExecContext(ctx, query, settledAt.UTC(), itemIDs)
	if err != nil {
		return 0, fmt.Errorf("order ledger: mark settled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
