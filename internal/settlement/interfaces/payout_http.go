package interfaces

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/settlement/application"
)

const payoutsPath = "/api/v1/payouts"

// PayoutHandler serves /api/v1/payouts.
type PayoutHandler struct {
	service     *application.SettlementService
	auditLogger audit.Logger
}

// NewPayoutHandler constructs a handler.
func NewPayoutHandler(service *application.SettlementService, auditLogger audit.Logger) (*PayoutHandler, error) {
	if service == nil {
		return nil, errors.New("payout handler: nil service")
	}
	return &PayoutHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles payout routes.
func (h *PayoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == payoutsPath {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
		return
	}
	rest := strings.TrimPrefix(path, payoutsPath+"/")
	if rest == path || rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
		return
	case len(parts) == 2 && parts[1] == "refresh" && r.Method == http.MethodPost:
		h.handleRefresh(w, r, id)
		return
	case len(parts) == 2 && parts[1] == "statement.pdf" && r.Method == http.MethodGet:
		h.handleStatementPDF(w, r, id)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *PayoutHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sellerID := auth.ScopedSellerID(r.Context(), query.Get("seller_id"))
	if err := auth.EnsureSellerScope(r.Context(), sellerID); err != nil {
		respondServiceError(w, err)
		return
	}
	history, err := h.service.SellerHistory(r.Context(), sellerID, query.Get("month"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *PayoutHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := h.service.Batch(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := auth.EnsureSellerScope(r.Context(), detail.Batch.SellerID); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *PayoutHandler) handleRefresh(w http.ResponseWriter, r *http.Request, id string) {
	batch, err := h.service.RefreshBatch(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
	logAudit(r, h.auditLogger, audit.Entry{
		Action:       "payout.refresh",
		ResourceType: "payout_batch",
		ResourceID:   batch.ID,
		SellerID:     batch.SellerID,
		Month:        batch.Month,
	}, map[string]any{"status": batch.Status, "provider_payout_id": batch.ProviderPayoutID})
}

func (h *PayoutHandler) handleStatementPDF(w http.ResponseWriter, r *http.Request, id string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("pdf", result, time.Since(start))
	}()

	detail, err := h.service.Batch(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	if err := auth.EnsureSellerScope(r.Context(), detail.Batch.SellerID); err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	data, err := BuildBatchStatementPDF(detail)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment("payout-"+detail.Batch.SellerID+"-"+detail.Batch.Month+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	logAudit(r, h.auditLogger, audit.Entry{
		Action:       "payout.statement.export",
		ResourceType: "payout_batch",
		ResourceID:   detail.Batch.ID,
		SellerID:     detail.Batch.SellerID,
		Month:        detail.Batch.Month,
	}, map[string]any{"format": "pdf"})
}
