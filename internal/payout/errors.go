package payout

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNonPositiveAmount is returned before any network call for amounts <= 0.
	ErrNonPositiveAmount = errors.New("payout: amount must be positive")
	// ErrMissingFundAccount is returned when the seller has no payout account.
	ErrMissingFundAccount = errors.New("payout: missing fund account id")
	// ErrPayoutFailed is returned when the provider reports a terminal failure.
	ErrPayoutFailed = errors.New("payout: provider reported failure")
	// ErrUnknownStatus is returned for a provider status this service does not know.
	ErrUnknownStatus = errors.New("payout: unknown provider status")
)

// ProviderError is a non-2xx reply from the provider.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
	Reason      string
	Field       string
	Raw         []byte
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("payout provider: http %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("payout provider: http %d", e.StatusCode)
}

// Definitive reports whether err is a final answer to a payout request:
// the request was never sent, or the provider refused it. After any other
// error the provider may have accepted the payout, and a retry must reuse
// the idempotency key.
func Definitive(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPayoutFailed) || errors.Is(err, ErrNonPositiveAmount) || errors.Is(err, ErrMissingFundAccount) {
		return true
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return perr.StatusCode >= 400 && perr.StatusCode < 500
}
