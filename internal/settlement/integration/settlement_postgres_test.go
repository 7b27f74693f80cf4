package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/logger"
	"marketplace-settlement/internal/payout"
	settlementapp "marketplace-settlement/internal/settlement/application"
	settlement "marketplace-settlement/internal/settlement/domain"
	settlementrepo "marketplace-settlement/internal/settlement/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSettlement_PostgresEndToEnd(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	resetTables(t, db)
	seed(t, db)

	provider := newFakeProvider()
	server := httptest.NewServer(provider)
	defer server.Close()

	client, err := payout.NewClient(server.URL, "key", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("payout client: %v", err)
	}
	dispatcher, err := payout.NewDispatcher(client, func(string) payout.Settings {
		return payout.Settings{AccountNumber: "2323230000000000", Currency: "INR", Mode: "IMPS", Purpose: "payout", NarrationPrefix: "Settlement", QueueIfLowBalance: true}
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	batches := settlementrepo.NewBatchRepository(db)
	svc, err := settlementapp.NewSettlementService(
		settlementrepo.NewOrderLedgerRepository(db),
		batches,
		settlementrepo.NewTransactionRepository(db),
		settlementrepo.NewSellerDirectory(db),
		dispatcher,
		settlementapp.WithLocation(time.UTC),
		settlementapp.WithLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	report, err := svc.MonthlyReport(ctx, "2025-07")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Sellers) != 2 {
		t.Fatalf("expected 2 report rows, got %+v", report.Sellers)
	}
	if !report.Sellers[0].NetPayout.Equal(decimal.NewFromInt(1900)) {
		t.Fatalf("unexpected S1 net payout %s", report.Sellers[0].NetPayout)
	}

	res, err := svc.Settle(ctx, "2025-07")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(res.Batches) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", res.Batches)
	}
	if res.Batches[0].Result != settlementapp.ResultDispatched {
		t.Fatalf("S1 should be dispatched: %+v", res.Batches[0])
	}
	if res.Batches[1].Result != settlementapp.ResultSkippedNoBank {
		t.Fatalf("S2 should be skipped: %+v", res.Batches[1])
	}
	if provider.Calls() != 1 {
		t.Fatalf("expected one provider call, got %d", provider.Calls())
	}
	if provider.LastAmount() != 190000 {
		t.Fatalf("expected 190000 minor units, got %d", provider.LastAmount())
	}

	assertSettled(t, db, "it-s1-a", true)
	assertSettled(t, db, "it-s1-late", false)
	assertSettled(t, db, "it-s2-a", false)

	batch, err := batches.FindBySellerMonth(ctx, "S1", "2025-07")
	if err != nil || batch == nil {
		t.Fatalf("find batch: %v %v", batch, err)
	}
	if batch.Status != settlement.BatchStatusPaid || batch.ProviderPayoutID == "" {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	detail, err := svc.Batch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("batch detail: %v", err)
	}
	if len(detail.Transactions) != 1 || detail.Transactions[0].Status != "processed" {
		t.Fatalf("unexpected transactions: %+v", detail.Transactions)
	}

	dup := *batch
	dup.ID = "another"
	if err := batches.Create(ctx, &dup); !errors.Is(err, settlement.ErrBatchExists) {
		t.Fatalf("expected ErrBatchExists, got %v", err)
	}

	again, err := svc.Settle(ctx, "2025-07")
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	for _, o := range again.Batches {
		if o.Result == settlementapp.ResultDispatched {
			t.Fatalf("second run must not dispatch: %+v", o)
		}
	}
	if provider.Calls() != 1 {
		t.Fatalf("second run called the provider")
	}

	history, err := svc.SellerHistory(ctx, "S1", "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history.Batches) != 1 || !history.Totals.Paid.Equal(decimal.NewFromInt(1900)) {
		t.Fatalf("unexpected history: %+v", history)
	}
}

type fakeProvider struct {
	mu         sync.Mutex
	calls      int
	lastAmount int64
	byKey      map[string]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byKey: make(map[string]string)}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/v1/payouts" {
		http.NotFound(w, r)
		return
	}
	var body payout.CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.calls++
	p.lastAmount = body.Amount
	key := r.Header.Get("X-Payout-Idempotency")
	id, ok := p.byKey[key]
	if !ok {
		id = "pout_" + body.ReferenceID
		p.byKey[key] = id
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payout.Payout{
		ID:            id,
		Entity:        "payout",
		FundAccountID: body.FundAccountID,
		Amount:        body.Amount,
		Currency:      body.Currency,
		Status:        "processed",
		Mode:          body.Mode,
		Purpose:       body.Purpose,
		ReferenceID:   body.ReferenceID,
		Narration:     body.Narration,
	})
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) LastAmount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAmount
}

func applyMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_settlement.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func resetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		"DELETE FROM payout_transactions",
		"DELETE FROM payout_batches",
		"DELETE FROM order_items",
		"DELETE FROM orders",
		"DELETE FROM sellers",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	exec := func(query string, args ...any) {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec(`INSERT INTO sellers (id, name, payout_account_id) VALUES ('S1', 'Seller One', 'fa_S1'), ('S2', 'Seller Two', NULL)`)

	exec(`INSERT INTO orders (id, order_status, payment_status, delivered_at) VALUES ($1, 'delivered', 'paid', $2)`,
		"ord-1", time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC))
	exec(`INSERT INTO orders (id, order_status, payment_status, delivered_at) VALUES ($1, 'delivered', 'paid', $2)`,
		"ord-aug", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	exec(`INSERT INTO orders (id, order_status, payment_status, delivered_at) VALUES ($1, 'delivered', 'refunded', $2)`,
		"ord-refunded", time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC))

	exec(`INSERT INTO order_items (id, order_id, seller_id, final_price, quantity, commission) VALUES
		('it-s1-a', 'ord-1', 'S1', 1000, 2, 100),
		('it-s2-a', 'ord-1', 'S2', 300, 1, 30),
		('it-s1-late', 'ord-aug', 'S1', 50, 1, 5),
		('it-s1-refunded', 'ord-refunded', 'S1', 70, 1, 7)`)
}

func assertSettled(t *testing.T, db *sql.DB, itemID string, want bool) {
	t.Helper()
	var settled bool
	if err := db.QueryRow(`SELECT is_settled_to_seller FROM order_items WHERE id = $1`, itemID).Scan(&settled); err != nil {
		t.Fatalf("load item %s: %v", itemID, err)
	}
	if settled != want {
		t.Fatalf("item %s settled=%v, want %v", itemID, settled, want)
	}
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
