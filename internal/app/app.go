// Package app assembles the repositories, balance oracle and services shared
// by the server and the ops CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tradebot/backoffice/internal/config"
	"github.com/tradebot/backoffice/internal/oracle"
	"github.com/tradebot/backoffice/internal/repository"
	"github.com/tradebot/backoffice/internal/service"
	"github.com/tradebot/backoffice/pkg/chain"
)

// App holds the wired services.
type App struct {
	DB    *pgxpool.Pool
	Redis *oracle.RedisStore // nil when the balance cache is in-process

	Auth          *service.AuthService
	Plans         *service.PlanService
	Subscriptions *service.SubscriptionService
	Withdrawals   *service.WithdrawalService
	Accrual       *service.AccrualService
	Admin         *service.AdminService
}

// New connects to Postgres (and Redis when configured), applies migrations
// and builds every service.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := repository.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	a := &App{DB: db}
	var cache oracle.Store = oracle.NewMemoryStore()
	if cfg.RedisURL != "" {
		a.Redis, err = oracle.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		cache = a.Redis
	}

	rpc, err := chain.NewClient(chain.Config{
		RPCURL:   cfg.RPCURL,
		Contract: cfg.TokenContract,
		Decimals: cfg.TokenDecimals,
		RetryMax: cfg.RPCRetryMax,
		Timeout:  cfg.BalanceFetchTimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("chain client: %w", err)
	}

	users := repository.NewUserRepository(db)
	plans := repository.NewPlanRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	withdrawals := repository.NewWithdrawalRepository(db)
	systemCache := repository.NewCacheRepository(db)

	balances := oracle.New(rpc, cache, systemCache, oracle.Config{
		TTL:          cfg.BalanceCacheTTL,
		FetchTimeout: cfg.BalanceFetchTimeout,
	}, logger)

	a.Auth = service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, users, logger)
	a.Plans = service.NewPlanService(plans, logger)
	a.Subscriptions = service.NewSubscriptionService(users, plans, subs, withdrawals, balances, logger)
	a.Withdrawals = service.NewWithdrawalService(users, plans, subs, withdrawals, balances, logger)
	a.Accrual = service.NewAccrualService(users, plans, subs, balances, systemCache, cfg.AccrualConcurrency, logger)
	a.Admin = service.NewAdminService(users, subs, withdrawals, a.Accrual, logger)
	return a, nil
}

// Seed installs the admin user and the default plan catalogue.
func (a *App) Seed(ctx context.Context) error {
	if err := a.Auth.SeedAdmin(ctx); err != nil {
		return err
	}
	return a.Plans.SeedDefaults(ctx)
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}
