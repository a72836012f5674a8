package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintrack/fintrack-go/internal/config"
	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/handler"
	"github.com/fintrack/fintrack-go/internal/infra/cache"
	"github.com/fintrack/fintrack-go/internal/infra/client"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
	"github.com/fintrack/fintrack-go/internal/openbanking"
	"github.com/fintrack/fintrack-go/internal/port"
	"github.com/fintrack/fintrack-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_path", cfg.StorePath),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "fintrack-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Local store ---
	store, err := localstore.Open(cfg.StorePath)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer store.Close()

	// --- Open banking simulator ---
	catalog, err := openbanking.LoadCatalog()
	if err != nil {
		logger.Fatal("failed to load bank catalog", zap.Error(err))
	}
	clock := port.SystemClock()
	sim, err := openbanking.NewSimulator(catalog, store, logger, openbanking.Options{
		ConnectDelay: cfg.SimConnectDelay,
		SyncDelay:    cfg.SimSyncDelay,
		Clock:        clock,
	})
	if err != nil {
		logger.Fatal("failed to init simulator", zap.Error(err))
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	financeCB := resilience.NewCircuitBreaker("finance-api")
	bankingCB := resilience.NewCircuitBreaker("banking-api")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	txnClient := client.NewTransactionsClient(httpClient, cfg.FinanceAPIURL, financeCB, resilienceCfg)
	budgetClient := client.NewBudgetsClient(httpClient, cfg.FinanceAPIURL, financeCB, resilienceCfg)
	bankingClient := client.NewBankingClient(httpClient, cfg.BankingAPIURL, bankingCB, resilienceCfg)

	// --- Services ---
	txnCache := cache.New[[]domain.Transaction](cfg.CacheTTL)
	authSvc := service.NewAuthService(store, clock, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	txnSvc := service.NewTransactionsService(txnClient, store, txnCache, metrics, logger)
	budgetSvc := service.NewBudgetsService(budgetClient, store, txnSvc, clock, metrics, logger)
	bankSvc := service.NewBankingService(bankingClient, sim, clock, metrics, logger)
	dashSvc := service.NewDashboardService(txnSvc, budgetSvc, clock, logger)
	settingsSvc := service.NewSettingsService(store, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Auth:         authSvc,
		Transactions: txnSvc,
		Budgets:      budgetSvc,
		Banking:      bankSvc,
		Dashboard:    dashSvc,
		Settings:     settingsSvc,
	}, metrics, cfg.CORSOrigin, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
