package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	policy := NewDefaultPolicy(nil, nil)
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements/report?month=2025-07", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, nil)
	mw := NewMiddleware([]byte("test-secret"), policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_FinanceForbiddenRun(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "finance", "")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_SellerForbiddenReport(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "seller", "S1")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements/report.xlsx?month=2025-07", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_SellerIdentityInContext(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "seller", "S1")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var gotSeller string
	var gotRole Role
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSeller = SellerIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts?seller_id=S1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotSeller != "S1" || gotRole != RoleSeller {
		t.Fatalf("identity = %q/%q", gotSeller, gotRole)
	}
}

func TestParseJWT_SellerWithoutSellerID(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "seller", "")
	if _, err := ParseJWT(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestEnsureSellerScope(t *testing.T) {
	seller := WithIdentity(context.Background(), RoleSeller, "user-1", "S1")
	if err := EnsureSellerScope(seller, "S1"); err != nil {
		t.Fatalf("own seller: %v", err)
	}
	if err := EnsureSellerScope(seller, "S2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other seller: expected forbidden, got %v", err)
	}
	if got := ScopedSellerID(seller, "S2"); got != "S1" {
		t.Fatalf("scoped seller = %q", got)
	}

	finance := WithIdentity(context.Background(), RoleFinance, "user-2", "")
	if err := EnsureSellerScope(finance, "S2"); err != nil {
		t.Fatalf("finance: %v", err)
	}
	if got := ScopedSellerID(finance, "S2"); got != "S2" {
		t.Fatalf("finance scoped seller = %q", got)
	}
}

func mustToken(t *testing.T, secret []byte, role, sellerID string) string {
	t.Helper()
	claims := Claims{
		Role:     role,
		SellerID: sellerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := SignJWT(claims, secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
