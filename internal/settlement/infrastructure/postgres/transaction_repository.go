package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	settlement "marketplace-settlement/internal/settlement/domain"
)

const defaultTransactionsTable = "payout_transactions"

// TransactionRepository appends payout transactions. Rows are never updated.
type TransactionRepository struct {
	db    DBTX
	table string
}

// NewTransactionRepository constructs a repository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db, table: defaultTransactionsTable}
}

// Append inserts a transaction row.
func (r *TransactionRepository) Append(ctx context.Context, tx settlement.PayoutTransaction) error {
	if r == nil || r.db == nil {
		return errors.New("transaction repo: nil db")
	}
	if tx.BatchID == "" {
		return settlement.ErrEmptyBatchID
	}
	var response any
	if len(tx.ProviderResponse) > 0 {
		response = []byte(tx.ProviderResponse)
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, batch_id, seller_id, month, order_item_ids, gross_sales, commission, net_payout,
	amount_minor, status, provider_payout_id, provider_response, error_message, settled_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, r.table),
		tx.ID, tx.BatchID, tx.SellerID, tx.Month, nonNil(tx.OrderItemIDs), tx.GrossSales, tx.Commission, tx.NetPayout,
		tx.AmountMinor, tx.Status, nullString(tx.ProviderPayoutID), response, nullString(tx.ErrorMessage),
		tx.SettledAt.UTC(), tx.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("transaction repo: append: %w", err)
	}
	return nil
}

// ListByBatch returns transactions for a batch, oldest first.
func (r *TransactionRepository) ListByBatch(ctx context.Context, batchID string) ([]settlement.PayoutTransaction, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, batch_id, seller_id, month, order_item_ids, gross_sales, commission, net_payout,
	amount_minor, status, provider_payout_id, provider_response, error_message, settled_at, created_at
FROM %s
WHERE batch_id = $1
ORDER BY created_at ASC`, r.table), batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.PayoutTransaction
	for rows.Next() {
		var tx settlement.PayoutTransaction
		var providerID sql.NullString
		var errMsg sql.NullString
		var response []byte
		if err := rows.Scan(
			&tx.ID, &tx.BatchID, &tx.SellerID, &tx.Month, textArray(&tx.OrderItemIDs),
			&tx.GrossSales, &tx.Commission, &tx.NetPayout, &tx.AmountMinor, &tx.Status,
			&providerID, &response, &errMsg, &tx.SettledAt, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		tx.ProviderPayoutID = providerID.String
		tx.ErrorMessage = errMsg.String
		if len(response) > 0 {
			tx.ProviderResponse = append([]byte(nil), response...)
		}
		tx.SettledAt = tx.SettledAt.UTC()
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
