package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/observability/metrics"
	settlement "marketplace-settlement/internal/settlement/domain"
)

const (
	maxNarrationLen   = 30
	maxReferenceIDLen = 40
)

// API is the provider surface the dispatcher needs.
type API interface {
	CreatePayout(ctx context.Context, req CreatePayoutRequest, idempotencyKey string) (Payout, json.RawMessage, error)
	GetPayout(ctx context.Context, payoutID string) (Payout, json.RawMessage, error)
}

// Settings are the provider request defaults for one seller.
type Settings struct {
	AccountNumber     string
	Currency          string
	Mode              string
	Purpose           string
	NarrationPrefix   string
	QueueIfLowBalance bool
}

// SettingsFunc resolves settings for a seller.
type SettingsFunc func(sellerID string) Settings

// Request asks for one seller payout.
type Request struct {
	SellerID        string
	PayoutAccountID string
	Amount          decimal.Decimal
	BatchID         string
	Month           string
	IdempotencyKey  string
}

// Result is the provider's view of a payout.
type Result struct {
	ProviderPayoutID string
	ProviderStatus   string
	Status           settlement.BatchStatus
	AmountMinor      int64
	FailureReason    string
	Raw              json.RawMessage
}

// Dispatcher turns settlement requests into provider payouts.
type Dispatcher struct {
	api      API
	settings SettingsFunc
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(api API, settings SettingsFunc) (*Dispatcher, error) {
	if api == nil {
		return nil, errors.New("payout dispatcher: nil api")
	}
	if settings == nil {
		return nil, errors.New("payout dispatcher: nil settings")
	}
	return &Dispatcher{api: api, settings: settings}, nil
}

// Dispatch creates a payout. A terminal provider status is returned as an
// error wrapping ErrPayoutFailed together with the raw response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result, err error) {
	amount, err := ToMinorUnits(req.Amount)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.PayoutAccountID) == "" {
		return Result{}, ErrMissingFundAccount
	}
	if req.IdempotencyKey == "" {
		return Result{}, errors.New("payout dispatcher: empty idempotency key")
	}

	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveDispatch(result, time.Since(start))
	}()

	s := d.settings(req.SellerID)
	body := CreatePayoutRequest{
		AccountNumber:     s.AccountNumber,
		FundAccountID:     req.PayoutAccountID,
		Amount:            amount,
		Currency:          s.Currency,
		Mode:              s.Mode,
		Purpose:           s.Purpose,
		QueueIfLowBalance: s.QueueIfLowBalance,
		ReferenceID:       ReferenceID(req.BatchID),
		Narration:         Narration(s.NarrationPrefix, req.Month),
		Notes: map[string]string{
			"seller_id": req.SellerID,
			"month":     req.Month,
			"batch_id":  req.BatchID,
		},
	}

	p, raw, err := d.api.CreatePayout(ctx, body, req.IdempotencyKey)
	if err != nil {
		return Result{Raw: raw, AmountMinor: amount}, err
	}
	res = toResult(p, raw)
	res.AmountMinor = amount
	if res.Status == "" {
		return res, fmt.Errorf("%w: %q", ErrUnknownStatus, p.Status)
	}
	if res.Status == settlement.BatchStatusFailed {
		return res, fmt.Errorf("%w: %s: %s", ErrPayoutFailed, p.Status, res.FailureReason)
	}
	if res.ProviderPayoutID == "" {
		return res, errors.New("payout dispatcher: provider returned no payout id")
	}
	return res, nil
}

// Status fetches the provider's current view of a payout. Terminal failures
// are reported through Result.Status, not as errors.
func (d *Dispatcher) Status(ctx context.Context, providerPayoutID string) (Result, error) {
	p, raw, err := d.api.GetPayout(ctx, providerPayoutID)
	if err != nil {
		return Result{Raw: raw}, err
	}
	res := toResult(p, raw)
	if res.Status == "" {
		return res, fmt.Errorf("%w: %q", ErrUnknownStatus, p.Status)
	}
	return res, nil
}

func toResult(p Payout, raw json.RawMessage) Result {
	status, _ := NormalizeStatus(p.Status)
	reason := p.FailureReason
	if reason == "" && p.StatusDetails != nil {
		reason = p.StatusDetails.Description
	}
	return Result{
		ProviderPayoutID: p.ID,
		ProviderStatus:   p.Status,
		Status:           status,
		AmountMinor:      p.Amount,
		FailureReason:    reason,
		Raw:              raw,
	}
}

// NormalizeStatus maps a provider status to a batch status.
func NormalizeStatus(providerStatus string) (settlement.BatchStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "processed":
		return settlement.BatchStatusPaid, true
	case "queued":
		return settlement.BatchStatusQueued, true
	case "pending":
		return settlement.BatchStatusPending, true
	case "processing":
		return settlement.BatchStatusProcessing, true
	case "rejected", "cancelled", "reversed", "failed":
		return settlement.BatchStatusFailed, true
	default:
		return "", false
	}
}

// ToMinorUnits converts an amount to integer minor units (x100, half-up).
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount.String())
	}
	minor := amount.Shift(2).Round(0)
	if !minor.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount.String())
	}
	return minor.IntPart(), nil
}

// Narration builds the bank statement narration: alphanumerics and spaces,
// at most 30 characters.
func Narration(prefix, month string) string {
	text := strings.TrimSpace(prefix + " " + month)
	var b strings.Builder
	for _, r := range text {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ') {
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxNarrationLen {
		out = strings.TrimSpace(out[:maxNarrationLen])
	}
	return out
}

// ReferenceID derives the provider reference id from the batch id.
func ReferenceID(batchID string) string {
	if len(batchID) > maxReferenceIDLen {
		return batchID[:maxReferenceIDLen]
	}
	return batchID
}
