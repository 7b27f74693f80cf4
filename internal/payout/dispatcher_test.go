package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	settlement "marketplace-settlement/internal/settlement/domain"
)

func testSettings(string) Settings {
	return Settings{
		AccountNumber:     "7878780080316316",
		Currency:          "INR",
		Mode:              "IMPS",
		Purpose:           "payout",
		NarrationPrefix:   "Settlement",
		QueueIfLowBalance: true,
	}
}

func newTestDispatcher(t *testing.T, handler http.HandlerFunc) (*Dispatcher, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "key", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	d, err := NewDispatcher(client, testSettings)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, &calls
}

func TestDispatch_SendsProviderRequest(t *testing.T) {
	var body CreatePayoutRequest
	var idem, user, pass string
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payouts" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		idem = r.Header.Get("X-Payout-Idempotency")
		user, pass, _ = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"id":"pout_1","entity":"payout","amount":190000,"currency":"INR","status":"processing"}`))
	})

	res, err := d.Dispatch(context.Background(), Request{
		SellerID:        "S1",
		PayoutAccountID: "fa_123",
		Amount:          decimal.RequireFromString("1900"),
		BatchID:         "b-1",
		Month:           "2025-07",
		IdempotencyKey:  "settle:2025-07:S1",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if idem != "settle:2025-07:S1" {
		t.Fatalf("idempotency header = %q", idem)
	}
	if user != "key" || pass != "secret" {
		t.Fatalf("basic auth = %q/%q", user, pass)
	}
	if body.Amount != 190000 || body.FundAccountID != "fa_123" || body.ReferenceID != "b-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.AccountNumber != "7878780080316316" || body.Mode != "IMPS" || !body.QueueIfLowBalance {
		t.Fatalf("settings not applied: %+v", body)
	}
	if body.Narration != "Settlement 202507" {
		t.Fatalf("narration = %q", body.Narration)
	}
	if res.ProviderPayoutID != "pout_1" || res.Status != settlement.BatchStatusProcessing || res.AmountMinor != 190000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(string(res.Raw), `"pout_1"`) {
		t.Fatalf("raw response not kept: %s", res.Raw)
	}
}

func TestDispatch_ProcessedMapsToPaid(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pout_2","status":"processed","amount":100}`))
	})
	res, err := d.Dispatch(context.Background(), Request{
		SellerID: "S1", PayoutAccountID: "fa_1", Amount: decimal.RequireFromString("1"),
		BatchID: "b-2", Month: "2025-07", IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Status != settlement.BatchStatusPaid {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestDispatch_RejectedIsError(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pout_3","status":"rejected","status_details":{"description":"beneficiary bank offline"}}`))
	})
	res, err := d.Dispatch(context.Background(), Request{
		SellerID: "S1", PayoutAccountID: "fa_1", Amount: decimal.RequireFromString("10"),
		BatchID: "b-3", Month: "2025-07", IdempotencyKey: "k",
	})
	if !errors.Is(err, ErrPayoutFailed) {
		t.Fatalf("expected ErrPayoutFailed, got %v", err)
	}
	if res.FailureReason != "beneficiary bank offline" || len(res.Raw) == 0 {
		t.Fatalf("failure detail lost: %+v", res)
	}
}

func TestDispatch_ProviderErrorSurfaced(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The fund account id provided does not exist","field":"fund_account_id"}}`))
	})
	res, err := d.Dispatch(context.Background(), Request{
		SellerID: "S1", PayoutAccountID: "fa_missing", Amount: decimal.RequireFromString("10"),
		BatchID: "b-4", Month: "2025-07", IdempotencyKey: "k",
	})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusBadRequest || perr.Code != "BAD_REQUEST_ERROR" || perr.Field != "fund_account_id" {
		t.Fatalf("unexpected provider error: %+v", perr)
	}
	if len(res.Raw) == 0 {
		t.Fatalf("raw error body should be returned")
	}
}

func TestDispatch_NonPositiveAmountNoNetworkCall(t *testing.T) {
	d, calls := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for _, amount := range []string{"0", "-5", "0.004"} {
		_, err := d.Dispatch(context.Background(), Request{
			SellerID: "S1", PayoutAccountID: "fa_1", Amount: decimal.RequireFromString(amount),
			BatchID: "b", Month: "2025-07", IdempotencyKey: "k",
		})
		if !errors.Is(err, ErrNonPositiveAmount) {
			t.Fatalf("amount %s: expected ErrNonPositiveAmount, got %v", amount, err)
		}
	}
	if *calls != 0 {
		t.Fatalf("expected no provider calls, got %d", *calls)
	}
}

func TestStatus_FetchesPayout(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payouts/pout_9" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"pout_9","status":"reversed","failure_reason":"account closed"}`))
	})
	res, err := d.Status(context.Background(), "pout_9")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res.Status != settlement.BatchStatusFailed || res.FailureReason != "account closed" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"1900":    190000,
		"10.5":    1050,
		"0.015":   2,
		"99.994":  9999,
		"123.455": 12346,
	}
	for in, want := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(in))
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %d want %d", in, got, want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]settlement.BatchStatus{
		"processed":  settlement.BatchStatusPaid,
		"QUEUED":     settlement.BatchStatusQueued,
		"pending":    settlement.BatchStatusPending,
		"processing": settlement.BatchStatusProcessing,
		"cancelled":  settlement.BatchStatusFailed,
	}
	for in, want := range cases {
		got, ok := NormalizeStatus(in)
		if !ok || got != want {
			t.Fatalf("%s: got %s ok=%v", in, got, ok)
		}
	}
	if _, ok := NormalizeStatus("teleported"); ok {
		t.Fatalf("unknown status should not normalize")
	}
}

func TestNarration(t *testing.T) {
	if got := Narration("Marketplace seller settlement payout", "2025-07"); len(got) > maxNarrationLen {
		t.Fatalf("narration too long: %q", got)
	}
	if got := Narration("Acme & Co.", "2025-07"); got != "Acme Co 202507" {
		t.Fatalf("narration = %q", got)
	}
}

func TestDefinitive(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rejected payout", err: fmt.Errorf("%w: rejected", ErrPayoutFailed), want: true},
		{name: "non-positive amount", err: ErrNonPositiveAmount, want: true},
		{name: "missing fund account", err: ErrMissingFundAccount, want: true},
		{name: "bad request", err: &ProviderError{StatusCode: http.StatusBadRequest}, want: true},
		{name: "request timeout", err: &ProviderError{StatusCode: http.StatusRequestTimeout}},
		{name: "conflict", err: &ProviderError{StatusCode: http.StatusConflict}},
		{name: "rate limited", err: &ProviderError{StatusCode: http.StatusTooManyRequests}},
		{name: "server error", err: &ProviderError{StatusCode: http.StatusBadGateway}},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "canceled", err: fmt.Errorf("post payout: %w", context.Canceled)},
		{name: "unknown status", err: fmt.Errorf("%w: %q", ErrUnknownStatus, "on_hold")},
		{name: "nil", err: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Definitive(tc.err); got != tc.want {
				t.Fatalf("Definitive(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
