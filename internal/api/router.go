package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/xp-ledger/internal/api/handlers"
	"github.com/baharkarakas/xp-ledger/internal/auth"
	"github.com/baharkarakas/xp-ledger/internal/config"
	"github.com/baharkarakas/xp-ledger/internal/metrics"
	"github.com/baharkarakas/xp-ledger/internal/middleware"
	"github.com/baharkarakas/xp-ledger/internal/services"
)

type RouterDeps struct {
	Cfg       config.Config
	Log       *slog.Logger
	Tokens    *auth.TokenManager
	Ledger    *services.LedgerService
	Rent      *services.RentService
	Referrals *services.ReferralService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	am := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)
	rl := middleware.NewRateLimiter(d.Cfg.Rate.RPS, d.Cfg.Rate.Burst)
	ah := handlers.NewAuthHandler(d.Tokens, d.Cfg.Env)
	lh := handlers.NewLedgerHandler(d.Ledger, d.Rent, d.Referrals, d.Log)

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.With(rl.Handler).Post("/auth/token", ah.Token)
		r.With(rl.Handler).Post("/auth/refresh", ah.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(am.Auth, rl.Handler)

			// ---------- xp ----------
			r.Get("/xp/balance", lh.Balance)
			r.Get("/xp/transactions", lh.Transactions)
			r.Get("/xp/daily-cap", lh.DailyCap)
			r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/xp/penalties", lh.Penalize)

			// ---------- game events ----------
			r.Post("/runs", lh.CompleteRun)
			r.Post("/territories/{territoryID}/rent", lh.PayRent)
			r.Post("/referrals", lh.Referral)
		})
	})

	return r
}
