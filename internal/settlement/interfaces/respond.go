package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/auth"
	settlement "marketplace-settlement/internal/settlement/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, settlement.ErrInvalidMonth),
		errors.Is(err, settlement.ErrEmptySellerID),
		errors.Is(err, settlement.ErrEmptyBatchID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, settlement.ErrBatchNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, settlement.ErrRunInProgress),
		errors.Is(err, settlement.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func logAudit(r *http.Request, logger audit.Logger, entry audit.Entry, meta map[string]any) {
	if logger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	entry.Actor = auth.SubjectFromContext(r.Context())
	entry.Role = string(auth.RoleFromContext(r.Context()))
	entry.Metadata = payload
	entry.IP = audit.ClientIP(r)
	entry.UserAgent = audit.UserAgent(r)
	_ = logger.Log(r.Context(), entry)
}
