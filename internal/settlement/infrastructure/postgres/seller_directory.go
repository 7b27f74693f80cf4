package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	settlement "marketplace-settlement/internal/settlement/domain"
)

const defaultSellersTable = "sellers"

// SellerDirectory reads seller payout destinations.
type SellerDirectory struct {
	db    DBTX
	table string
}

// NewSellerDirectory constructs a directory.
func NewSellerDirectory(db DBTX) *SellerDirectory {
	return &SellerDirectory{db: db, table: defaultSellersTable}
}

// GetSeller loads a seller by id; nil when not found.
func (d *SellerDirectory) GetSeller(ctx context.Context, sellerID string) (*settlement.Seller, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("seller directory: nil db")
	}
	if sellerID == "" {
		return nil, settlement.ErrEmptySellerID
	}
	var seller settlement.Seller
	var account sql.NullString
	err := d.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, name, payout_account_id
FROM %s
WHERE id = $1
LIMIT 1`, d.table), sellerID).Scan(&seller.ID, &seller.Name, &account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if account.Valid {
		seller.PayoutAccountID = account.String
	}
	return &seller, nil
}
