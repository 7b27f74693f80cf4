package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusDelivered = "delivered"
	PaymentStatusPaid    = "paid"
)

// Order is a persisted marketplace order. The settlement core only reads it.
type Order struct {
	ID            string
	OrderStatus   string
	PaymentStatus string
	DeliveredAt   time.Time
	Items         []LineItem
}

// LineItem is a seller's share of an order.
type LineItem struct {
	ID                string
	OrderID           string
	SellerID          string
	FinalPrice        decimal.Decimal
	Quantity          int64
	Commission        decimal.Decimal
	IsSettledToSeller bool
	SettledAt         *time.Time
}

// LineTotal returns FinalPrice x Quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.FinalPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// IsEligible reports whether the order is delivered, paid and delivered inside w.
func (o Order) IsEligible(w Window) bool {
	if o.OrderStatus != OrderStatusDelivered || o.PaymentStatus != PaymentStatusPaid {
		return false
	}
	if o.DeliveredAt.IsZero() {
		return false
	}
	return w.Contains(o.DeliveredAt)
}
