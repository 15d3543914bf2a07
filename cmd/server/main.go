package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tradebot/backoffice/internal/app"
	"github.com/tradebot/backoffice/internal/config"
	"github.com/tradebot/backoffice/internal/handler"
	"github.com/tradebot/backoffice/internal/logging"
	"github.com/tradebot/backoffice/internal/metrics"
	appMiddleware "github.com/tradebot/backoffice/internal/middleware"
	"github.com/tradebot/backoffice/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// run returns before exiting so its deferred cleanup always happens.
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer a.Close()
	logger.Info().Msg("database connected & migrated")

	if err := a.Seed(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	if err := a.Accrual.Start(ctx, cfg.AccrualSchedule); err != nil {
		return fmt.Errorf("accrual scheduler failed: %w", err)
	}
	defer a.Accrual.Stop()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(a.Auth)
	userHandler := handler.NewUserHandler(a.Auth)
	plansHandler := handler.NewPlansHandler(a.Plans)
	subHandler := handler.NewSubscriptionHandler(a.Subscriptions)
	withdrawalHandler := handler.NewWithdrawalHandler(a.Withdrawals)
	adminHandler := handler.NewAdminHandler(a.Admin, a.Withdrawals, a.Accrual)
	var cachePinger handler.Pinger
	if a.Redis != nil {
		cachePinger = a.Redis
	}
	healthHandler := handler.NewHealthHandler(a.DB, cachePinger)
	dashboardStream := ws.NewDashboardHandler(a.Subscriptions, a.Auth, cfg.DashboardPushInterval, logger)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery(logger))
	r.Use(appMiddleware.Logger(logger.With().Str("component", "http").Logger()))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	defer globalRL.Stop()
	strictRL := appMiddleware.StrictRateLimiter()
	defer strictRL.Stop()

	// Public routes
	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(globalRL.Middleware())
		r.Get("/api/plans", plansHandler.List)

		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(strictRL.Middleware())
			r.Post("/api/auth/login", authHandler.Login)
			r.Post("/api/auth/register", authHandler.Register)
		})

		// Protected API routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(a.Auth))

			r.Post("/api/auth/logout", authHandler.Logout)
			r.Get("/api/auth/me", authHandler.Me)
			r.Put("/api/auth/wallet", authHandler.UpdateWallet)

			r.Post("/api/subscription", subHandler.Subscribe)
			r.Put("/api/subscription", subHandler.ChangePlan)
			r.Get("/api/dashboard", subHandler.Dashboard)

			r.Get("/api/withdrawals/eligibility", withdrawalHandler.Eligibility)
			r.Post("/api/withdrawals/quote", withdrawalHandler.Quote)
			r.Post("/api/withdrawals", withdrawalHandler.Request)
			r.Get("/api/withdrawals", withdrawalHandler.List)

			// Admin routes
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(appMiddleware.AdminOnly)
				r.Get("/stats", adminHandler.GetStats)

				r.Get("/users", userHandler.List)
				r.Post("/users", userHandler.Create)
				r.Delete("/users/{id}", userHandler.Delete)

				r.Get("/plans", plansHandler.ListAll)
				r.Post("/plans", plansHandler.Create)
				r.Put("/plans/{id}", plansHandler.Revise)
				r.Delete("/plans/{id}", plansHandler.Archive)

				r.Get("/withdrawals", adminHandler.ListWithdrawals)
				r.Post("/withdrawals/{id}/approve", adminHandler.Approve)
				r.Post("/withdrawals/{id}/reject", adminHandler.Reject)

				r.Post("/accrual/run", adminHandler.RunAccrual)
			})
		})
	})

	// WebSocket dashboard (auth via query param)
	r.HandleFunc("/ws/dashboard", dashboardStream.Handle)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logger.Info().Str("addr", addr).Msg("back-office listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
