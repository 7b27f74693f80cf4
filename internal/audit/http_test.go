package audit

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/payouts", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("remote addr ip = %q", got)
	}

	req.Header.Set("X-Real-IP", "192.168.1.4")
	if got := ClientIP(req); got != "192.168.1.4" {
		t.Fatalf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("x-forwarded-for = %q", got)
	}
}

func TestDigestJSON(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("empty payload should have empty digest")
	}
	a := DigestJSON([]byte(`{"month":"2025-07"}`))
	b := DigestJSON([]byte(`{"month":"2025-07"}`))
	if a == "" || a != b {
		t.Fatalf("digest not stable: %q vs %q", a, b)
	}
}
