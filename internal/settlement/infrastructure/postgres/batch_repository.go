package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	settlement "marketplace-settlement/internal/settlement/domain"
)

const defaultBatchesTable = "payout_batches"

const batchColumns = `id, month, seller_id, gross_sales, commission, net_payout,
	order_item_ids, order_ids, status, provider_payout_id, idempotency_key,
	attempts, failure_reason, settled_at, created_at, updated_at`

// BatchRepository persists payout batches.
type BatchRepository struct {
	db    DBTX
	table string
}

// BatchOption configures the repository.
type BatchOption func(*BatchRepository)

// WithBatchesTable overrides the default table.
func WithBatchesTable(table string) BatchOption {
	return func(repo *BatchRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewBatchRepository constructs a repository.
func NewBatchRepository(db DBTX, opts ...BatchOption) *BatchRepository {
	repo := &BatchRepository{db: db, table: defaultBatchesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Create inserts a batch; the (month, seller_id) unique index makes a
// second batch for the same seller month a no-op reported as ErrBatchExists.
func (r *BatchRepository) Create(ctx context.Context, batch *settlement.PayoutBatch) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	if batch == nil {
		return settlement.ErrNilBatch
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (month, seller_id) DO NOTHING`, r.table, batchColumns)

	res, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.Month, batch.SellerID, batch.GrossSales, batch.Commission, batch.NetPayout,
		nonNil(batch.OrderItemIDs), nonNil(batch.OrderIDs), string(batch.Status), nullString(batch.ProviderPayoutID), batch.IdempotencyKey,
		batch.Attempts, nullString(batch.FailureReason), batch.SettledAt, batch.CreatedAt.UTC(), batch.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("batch repo: create: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrBatchExists
	}
	return nil
}

// Update overwrites mutable batch fields.
func (r *BatchRepository) Update(ctx context.Context, batch *settlement.PayoutBatch) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	if batch == nil {
		return settlement.ErrNilBatch
	}
	query := fmt.Sprintf(`
UPDATE %s
SET gross_sales = $1, commission = $2, net_payout = $3, order_item_ids = $4, order_ids = $5,
	status = $6, provider_payout_id = $7, idempotency_key = $8, attempts = $9,
	failure_reason = $10, settled_at = $11, updated_at = $12
WHERE id = $13`, r.table)

	res, err := r.db.ExecContext(ctx, query,
		batch.GrossSales, batch.Commission, batch.NetPayout, nonNil(batch.OrderItemIDs), nonNil(batch.OrderIDs),
		string(batch.Status), nullString(batch.ProviderPayoutID), batch.IdempotencyKey, batch.Attempts,
		nullString(batch.FailureReason), batch.SettledAt, batch.UpdatedAt.UTC(), batch.ID,
	)
	if err != nil {
		return fmt.Errorf("batch repo: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrBatchNotFound
	}
	return nil
}

// GetByID loads a batch or nil.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*settlement.PayoutBatch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("batch repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, batchColumns, r.table), id)
	return scanBatch(row)
}

// FindBySellerMonth loads the batch for a seller month or nil.
func (r *BatchRepository) FindBySellerMonth(ctx context.Context, sellerID, month string) (*settlement.PayoutBatch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("batch repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE seller_id = $1 AND month = $2
LIMIT 1`, batchColumns, r.table), sellerID, month)
	return scanBatch(row)
}

// ListBySeller lists batches for a seller, optionally for one month.
func (r *BatchRepository) ListBySeller(ctx context.Context, sellerID, month string) ([]settlement.PayoutBatch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("batch repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE seller_id = $1 AND ($2 = '' OR month = $2)
ORDER BY month ASC, created_at ASC`, batchColumns, r.table), sellerID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.PayoutBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			result = append(result, *batch)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanBatch(row rowScanner) (*settlement.PayoutBatch, error) {
	var batch settlement.PayoutBatch
	var status string
	var providerID sql.NullString
	var failure sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(
		&batch.ID,
		&batch.Month,
		&batch.SellerID,
		&batch.GrossSales,
		&batch.Commission,
		&batch.NetPayout,
		textArray(&batch.OrderItemIDs),
		textArray(&batch.OrderIDs),
		&status,
		&providerID,
		&batch.IdempotencyKey,
		&batch.Attempts,
		&failure,
		&settledAt,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, ok := settlement.ParseBatchStatus(status)
	if !ok {
		return nil, fmt.Errorf("batch repo: unknown status %q", status)
	}
	batch.Status = parsed
	if providerID.Valid {
		batch.ProviderPayoutID = providerID.String
	}
	if failure.Valid {
		batch.FailureReason = failure.String
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		batch.SettledAt = &t
	}
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.UpdatedAt = batch.UpdatedAt.UTC()
	return &batch, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
