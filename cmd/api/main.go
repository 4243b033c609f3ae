package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/baharkarakas/xp-ledger/internal/alert"
	"github.com/baharkarakas/xp-ledger/internal/api"
	"github.com/baharkarakas/xp-ledger/internal/auth"
	"github.com/baharkarakas/xp-ledger/internal/config"
	"github.com/baharkarakas/xp-ledger/internal/db"
	"github.com/baharkarakas/xp-ledger/internal/logger"
	"github.com/baharkarakas/xp-ledger/internal/metrics"
	"github.com/baharkarakas/xp-ledger/internal/repository/memory"
	"github.com/baharkarakas/xp-ledger/internal/repository/postgres"
	"github.com/baharkarakas/xp-ledger/internal/repository/redisrepo"
	"github.com/baharkarakas/xp-ledger/internal/services"
	"github.com/baharkarakas/xp-ledger/internal/worker"
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

type backend struct {
	repos   postgres.Repositories
	rdb     *redis.Client
	cleanup []func()
}

func (b *backend) close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{}

	if cfg.BalanceBackend == "memory" {
		st := memory.NewStore()
		b.repos = postgres.Repositories{Balances: st, Transactions: st, Rentals: st, Referrals: st}
		log.Warn("using in-memory ledger, balances are lost on restart")
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		b.cleanup = append(b.cleanup, pool.Close)

		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				b.close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			log.Info("migrations applied")
		}
		b.repos = postgres.NewRepositories(pool)
	}

	if cfg.BalanceBackend == "redis" || cfg.Redis.Alerts {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.cleanup = append(b.cleanup, func() { _ = b.rdb.Close() })
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.rdb.Ping(pctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
	}
	if cfg.BalanceBackend == "redis" {
		b.repos.Balances = redisrepo.NewBalances(b.rdb)
	}
	return b, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	alerter := alert.Fanout{alert.LogAlerter{Log: log}}
	if cfg.Redis.Alerts {
		alerter = append(alerter, alert.NewRedisAlerter(be.rdb, alert.DefaultRedisKey, log))
	}

	wp := worker.NewPool(cfg.Ledger.Workers)
	defer wp.Stop()

	ledger := services.NewLedgerService(be.repos.Balances, be.repos.Transactions, services.LedgerConfig{
		DailyCap:     cfg.Ledger.DailyCap,
		PerKmRate:    cfg.Ledger.PerKmRate,
		StoreTimeout: cfg.Ledger.StoreTimeout,
		Location:     loc,
	}, log)
	rent := services.NewRentService(ledger, be.repos.Rentals, alerter, wp, log)
	referrals := services.NewReferralService(ledger, be.repos.Referrals, services.ReferralConfig{
		ReferrerBonus: cfg.Ledger.ReferrerBonus,
		NewUserBonus:  cfg.Ledger.NewUserBonus,
	}, log)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:       cfg,
		Log:       log,
		Tokens:    auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		Ledger:    ledger,
		Rent:      rent,
		Referrals: referrals,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "backend", cfg.BalanceBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// handlers finish before the deferred pool drain picks up their reports
	return srv.Shutdown(shutdownCtx)
}
