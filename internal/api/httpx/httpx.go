package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/xp-ledger/internal/services"
)

type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteServiceError maps ledger errors onto status codes. Critical
// inconsistencies are checked first so they are never reported as a plain
// store failure.
func WriteServiceError(w http.ResponseWriter, err error) {
	var ib *services.InsufficientBalanceError
	switch {
	case errors.Is(err, services.ErrCriticalInconsistency):
		WriteError(w, http.StatusInternalServerError, "critical_inconsistency",
			"ledger inconsistency detected, operators have been alerted", nil)
	case errors.As(err, &ib):
		WriteError(w, http.StatusConflict, "insufficient_balance", "insufficient balance", map[string]int64{
			"balance":   ib.Balance,
			"requested": ib.Requested,
			"shortfall": ib.Shortfall(),
		})
	case errors.Is(err, services.ErrAlreadyReferred):
		WriteError(w, http.StatusConflict, "already_referred", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidKind),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidTransfer),
		errors.Is(err, services.ErrInvalidReferral):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, services.ErrStoreTimeout):
		WriteError(w, http.StatusGatewayTimeout, "store_timeout",
			"store timed out, the operation may have been applied; re-check the balance", nil)
	case errors.Is(err, services.ErrStoreUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "store unavailable, retry later", nil)
	default:
		slog.Error("unmapped service error", "err", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
