package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/xp-ledger/internal/api/httpx"
	"github.com/baharkarakas/xp-ledger/internal/api/validate"
	"github.com/baharkarakas/xp-ledger/internal/middleware"
	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/services"
)

type LedgerHandler struct {
	Ledger    *services.LedgerService
	Rent      *services.RentService
	Referrals *services.ReferralService
	Log       *slog.Logger
}

func NewLedgerHandler(l *services.LedgerService, rent *services.RentService, ref *services.ReferralService, log *slog.Logger) *LedgerHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerHandler{Ledger: l, Rent: rent, Referrals: ref, Log: log}
}

// ----------------- Responses -----------------

type mutationResp struct {
	NewBalance     int64  `json:"new_balance"`
	Debt           int64  `json:"debt,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	HistoryWarning string `json:"history_warning,omitempty"`
}

func warning(err error) string {
	if err == nil {
		return ""
	}
	return "balance updated but the transaction record was not stored"
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "validation failed", err)
		return false
	}
	return true
}

func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "not authenticated", nil)
	}
	return uid, ok
}

// location resolves ?tz= or a body tz; empty means the server default.
func location(w http.ResponseWriter, tz string) (*time.Location, bool) {
	if tz == "" {
		return nil, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "unknown time zone", nil)
		return nil, false
	}
	return loc, true
}

// ----------------- Reads -----------------

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	bal, err := h.Ledger.GetBalance(r.Context(), uid)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, models.Balance{UserID: uid, Amount: bal})
}

func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	txs, err := h.Ledger.History(r.Context(), uid, limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

func (h *LedgerHandler) DailyCap(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	loc, ok := location(w, r.URL.Query().Get("tz"))
	if !ok {
		return
	}
	dc, err := h.Ledger.CheckDailyCap(r.Context(), uid, loc)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dc)
}

// ----------------- Mutations -----------------

type runReq struct {
	DistanceKm      float64 `json:"distance_km" validate:"gt=0"`
	DurationSeconds int64   `json:"duration_seconds" validate:"gte=0"`
	TZ              string  `json:"tz" validate:"omitempty,timezone"`
}

type runResp struct {
	services.RunResult
	HistoryWarning string `json:"history_warning,omitempty"`
}

func (h *LedgerHandler) CompleteRun(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req runReq
	if !decode(w, r, &req) {
		return
	}
	loc, ok := location(w, req.TZ)
	if !ok {
		return
	}
	res, err := h.Ledger.CompleteRun(r.Context(), uid, req.DistanceKm, req.DurationSeconds, loc)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, runResp{RunResult: res, HistoryWarning: warning(res.HistoryErr)})
}

type rentReq struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

func (h *LedgerHandler) PayRent(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req rentReq
	if !decode(w, r, &req) {
		return
	}
	rt, err := h.Rent.PayRent(r.Context(), uid, req.OwnerID, chi.URLParam(r, "territoryID"), req.Amount)
	if err != nil {
		h.Log.Debug("rent rejected", "rent_id", rt.ID, "state", rt.State, "err", err)
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rt)
}

type referralReq struct {
	ReferrerID string `json:"referrer_id" validate:"required"`
}

// Referral is called by the newly registered user naming who referred them.
func (h *LedgerHandler) Referral(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req referralReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Referrals.ProcessReferralBonus(r.Context(), req.ReferrerID, uid)
	switch {
	case err != nil && res.Partial():
		// some XP moved; the caller retries to collect the rest
		h.Log.Warn("referral partially paid", "referrer_id", req.ReferrerID, "new_user_id", uid, "err", err)
		httpx.WriteJSON(w, http.StatusAccepted, referralResp{ReferralResult: res, Error: err.Error()})
	case err != nil:
		httpx.WriteServiceError(w, err)
	default:
		httpx.WriteJSON(w, http.StatusOK, referralResp{ReferralResult: res})
	}
}

type referralResp struct {
	services.ReferralResult
	Error string `json:"error,omitempty"`
}

type penaltyReq struct {
	UserID     string  `json:"user_id" validate:"required"`
	BaseAmount int64   `json:"base_amount" validate:"gt=0"`
	Multiplier float64 `json:"multiplier" validate:"gt=0"`
	Reason     string  `json:"reason" validate:"max=200"`
}

func (h *LedgerHandler) Penalize(w http.ResponseWriter, r *http.Request) {
	var req penaltyReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Ledger.Penalize(r.Context(), req.UserID, req.BaseAmount, req.Multiplier, req.Reason)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mutationResp{
		NewBalance:     res.NewBalance,
		Debt:           res.Debt,
		TransactionID:  res.TransactionID,
		HistoryWarning: warning(res.HistoryErr),
	})
}
