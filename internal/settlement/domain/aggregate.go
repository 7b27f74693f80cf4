package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SellerSettlement is one seller's aggregated, still-unsettled earnings.
type SellerSettlement struct {
	SellerID   string          `json:"sellerId"`
	GrossSales decimal.Decimal `json:"grossSales"`
	Commission decimal.Decimal `json:"commission"`
	NetPayout  decimal.Decimal `json:"netPayout"`
	ItemIDs    []string        `json:"itemIds"`
	OrderIDs   []string        `json:"orderIds"`
	CountItems int             `json:"countItems"`
}

// AggregateBySeller groups unsettled items per seller.
// Items already settled or without a seller are ignored, and sellers with
// no remaining items are not emitted. Output is ordered by seller id.
func AggregateBySeller(items []LineItem) []SellerSettlement {
	type acc struct {
		row       SellerSettlement
		seenItem  map[string]struct{}
		seenOrder map[string]struct{}
	}
	bySeller := make(map[string]*acc)
	for _, item := range items {
		if item.IsSettledToSeller || item.SellerID == "" {
			continue
		}
		a := bySeller[item.SellerID]
		if a == nil {
			a = &acc{
				row: SellerSettlement{
					SellerID:   item.SellerID,
					GrossSales: decimal.Zero,
					Commission: decimal.Zero,
				},
				seenItem:  make(map[string]struct{}),
				seenOrder: make(map[string]struct{}),
			}
			bySeller[item.SellerID] = a
		}
		if _, dup := a.seenItem[item.ID]; dup {
			continue
		}
		a.seenItem[item.ID] = struct{}{}
		a.row.ItemIDs = append(a.row.ItemIDs, item.ID)
		a.row.GrossSales = a.row.GrossSales.Add(item.LineTotal())
		a.row.Commission = a.row.Commission.Add(item.Commission)
		a.row.CountItems++
		if _, dup := a.seenOrder[item.OrderID]; !dup && item.OrderID != "" {
			a.seenOrder[item.OrderID] = struct{}{}
			a.row.OrderIDs = append(a.row.OrderIDs, item.OrderID)
		}
	}

	result := make([]SellerSettlement, 0, len(bySeller))
	for _, a := range bySeller {
		if a.row.CountItems == 0 {
			continue
		}
		a.row.NetPayout = a.row.GrossSales.Sub(a.row.Commission)
		result = append(result, a.row)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SellerID < result[j].SellerID
	})
	return result
}
