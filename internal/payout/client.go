// Package payout talks to the payout provider's REST API and turns a settled
// batch into a provider payout.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal payout provider REST client.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewClient constructs a provider client.
func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("payout: empty base url")
	}
	if keyID == "" || keySecret == "" {
		return nil, errors.New("payout: empty api credentials")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// CreatePayoutRequest is the provider's create-payout body.
type CreatePayoutRequest struct {
	AccountNumber     string            `json:"account_number"`
	FundAccountID     string            `json:"fund_account_id"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Mode              string            `json:"mode"`
	Purpose           string            `json:"purpose"`
	QueueIfLowBalance bool              `json:"queue_if_low_balance"`
	ReferenceID       string            `json:"reference_id"`
	Narration         string            `json:"narration"`
	Notes             map[string]string `json:"notes,omitempty"`
}

// Payout is the provider's payout entity.
type Payout struct {
	ID            string         `json:"id"`
	Entity        string         `json:"entity"`
	FundAccountID string         `json:"fund_account_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Status        string         `json:"status"`
	Mode          string         `json:"mode"`
	Purpose       string         `json:"purpose"`
	ReferenceID   string         `json:"reference_id"`
	Narration     string         `json:"narration"`
	UTR           string         `json:"utr"`
	FailureReason string         `json:"failure_reason"`
	StatusDetails *StatusDetails `json:"status_details,omitempty"`
	CreatedAt     int64          `json:"created_at"`
}

// StatusDetails explains a provider status.
type StatusDetails struct {
	Description string `json:"description"`
	Source      string `json:"source"`
	Reason      string `json:"reason"`
}

// CreatePayout submits a payout. The idempotency key makes a resubmission of
// the same attempt return the original payout instead of paying twice.
func (c *Client) CreatePayout(ctx context.Context, req CreatePayoutRequest, idempotencyKey string) (Payout, json.RawMessage, error) {
	if idempotencyKey == "" {
		return Payout{}, nil, errors.New("payout: empty idempotency key")
	}
	headers := map[string]string{"X-Payout-Idempotency": idempotencyKey}
	var resp Payout
	raw, err := c.doJSON(ctx, http.MethodPost, "/v1/payouts", headers, req, &resp)
	if err != nil {
		return Payout{}, raw, err
	}
	return resp, raw, nil
}

// GetPayout fetches a payout by provider id.
func (c *Client) GetPayout(ctx context.Context, payoutID string) (Payout, json.RawMessage, error) {
	if payoutID == "" {
		return Payout{}, nil, errors.New("payout: empty payout id")
	}
	var resp Payout
	raw, err := c.doJSON(ctx, http.MethodGet, "/v1/payouts/"+url.PathEscape(payoutID), nil, nil, &resp)
	if err != nil {
		return Payout{}, raw, err
	}
	return resp, raw, nil
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Source      string `json:"source"`
		Reason      string `json:"reason"`
		Field       string `json:"field"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) (json.RawMessage, error) {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		perr := &ProviderError{StatusCode: resp.StatusCode, Raw: raw}
		var parsed errorResponse
		if json.Unmarshal(raw, &parsed) == nil {
			perr.Code = parsed.Error.Code
			perr.Description = parsed.Error.Description
			perr.Reason = parsed.Error.Reason
			perr.Field = parsed.Error.Field
		}
		return raw, perr
	}
	if out == nil || len(raw) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("payout: decode response: %w", err)
	}
	return raw, nil
}
