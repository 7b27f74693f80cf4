package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/settlement/application"
)

// SettlementHandler serves /api/v1/settlements.
type SettlementHandler struct {
	service     *application.SettlementService
	auditLogger audit.Logger
}

// NewSettlementHandler constructs a handler.
func NewSettlementHandler(service *application.SettlementService, auditLogger audit.Logger) (*SettlementHandler, error) {
	if service == nil {
		return nil, errors.New("settlement handler: nil service")
	}
	return &SettlementHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles settlement routes.
func (h *SettlementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/settlements/run":
		if r.Method == http.MethodPost {
			h.handleRun(w, r)
			return
		}
	case "/api/v1/settlements/report":
		if r.Method == http.MethodGet {
			h.handleReport(w, r)
			return
		}
	case "/api/v1/settlements/report.csv":
		if r.Method == http.MethodGet {
			h.handleReportCSV(w, r)
			return
		}
	case "/api/v1/settlements/report.xlsx":
		if r.Method == http.MethodGet {
			h.handleReportXLSX(w, r)
			return
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (h *SettlementHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month string `json:"month"`
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Month == "" {
		req.Month = r.URL.Query().Get("month")
	}

	result, err := h.service.Settle(r.Context(), req.Month)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)

	counts := result.Counts()
	logAudit(r, h.auditLogger, audit.Entry{
		Action:       "settlement.run",
		ResourceType: "settlement_run",
		ResourceID:   result.Month,
		Month:        result.Month,
	}, map[string]any{
		"sellers":            len(result.Batches),
		"dispatched":         counts[application.ResultDispatched],
		"already_dispatched": counts[application.ResultAlreadyDispatched],
		"failed":             counts[application.ResultFailed],
		"skipped_no_bank":    counts[application.ResultSkippedNoBank],
		"error":              counts[application.ResultError],
	})
}

func (h *SettlementHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.MonthlyReport(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SettlementHandler) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("csv", result, time.Since(start))
	}()

	report, err := h.service.MonthlyReport(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment("settlement-"+report.Month+".csv"))
	if err := WriteReportCSV(w, report); err != nil {
		result = metrics.ResultError
		return
	}
	h.logExport(r, report.Month, "csv")
}

func (h *SettlementHandler) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("xlsx", result, time.Since(start))
	}()

	report, err := h.service.MonthlyReport(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	data, err := BuildReportXLSX(report)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment("settlement-"+report.Month+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logExport(r, report.Month, "xlsx")
}

func (h *SettlementHandler) logExport(r *http.Request, month, format string) {
	logAudit(r, h.auditLogger, audit.Entry{
		Action:       "settlement.report.export",
		ResourceType: "settlement_report",
		ResourceID:   month,
		Month:        month,
	}, map[string]any{"format": format})
}

func attachment(name string) string {
	return `attachment; filename="` + strings.ReplaceAll(name, `"`, "") + `"`
}
