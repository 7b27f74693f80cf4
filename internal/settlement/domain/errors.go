package settlement

import "errors"

var (
	// ErrInvalidMonth is returned when a month is not formatted as YYYY-MM.
	ErrInvalidMonth = errors.New("settlement: month must be YYYY-MM")
	// ErrEmptySellerID is returned when seller id is empty.
	ErrEmptySellerID = errors.New("settlement: empty seller id")
	// ErrEmptyBatchID is returned when batch id is empty.
	ErrEmptyBatchID = errors.New("settlement: empty batch id")
	// ErrNilBatch is returned when saving a nil batch.
	ErrNilBatch = errors.New("settlement: nil batch")
	// ErrBatchNotFound is returned when a batch is not found.
	ErrBatchNotFound = errors.New("settlement: batch not found")
	// ErrBatchExists is returned when a batch already exists for a seller month.
	ErrBatchExists = errors.New("settlement: batch already exists for seller month")
	// ErrInvalidTransition is returned when a batch status change is not allowed.
	ErrInvalidTransition = errors.New("settlement: invalid batch status transition")
	// ErrNegativeValue is returned when a negative amount is provided.
	ErrNegativeValue = errors.New("settlement: negative value")
	// ErrRunInProgress is returned when another run holds the month lock.
	ErrRunInProgress = errors.New("settlement: run already in progress for month")
	// ErrNoPayoutAccount marks a seller without a payout destination.
	ErrNoPayoutAccount = errors.New("settlement: seller has no payout account configured")
)
