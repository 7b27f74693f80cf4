package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// WebhookNotifier posts run alerts to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, alert RunAlert) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatRunAlert(alert)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: http %d", resp.StatusCode)
	}
	return nil
}

func formatRunAlert(alert RunAlert) string {
	var b strings.Builder
	b.WriteString("[Settlement Alert]\n")
	if alert.Month != "" {
		fmt.Fprintf(&b, "Month: %s\n", alert.Month)
	}
	fmt.Fprintf(&b, "Settled: %d\n", alert.Settled)
	if len(alert.Failed) > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", len(alert.Failed))
		for _, f := range alert.Failed {
			if f.BatchID != "" {
				fmt.Fprintf(&b, "- %s (batch %s): %s\n", f.SellerID, f.BatchID, f.Reason)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", f.SellerID, f.Reason)
			}
		}
	}
	if len(alert.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped (no payout account): %s\n", strings.Join(alert.Skipped, ", "))
	}
	if alert.RecommendedAction != "" {
		fmt.Fprintf(&b, "Suggested: %s\n", alert.RecommendedAction)
	}
	if len(alert.Meta) > 0 {
		keys := make([]string, 0, len(alert.Meta))
		for k := range alert.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, alert.Meta[k])
		}
	}
	return strings.TrimSpace(b.String())
}
