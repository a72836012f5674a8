package handler

import (
	"net/http"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router needs. Keeps NewRouter's
// signature stable as endpoints are added.
type Services struct {
	Auth         *service.AuthService
	Transactions *service.TransactionsService
	Budgets      *service.BudgetsService
	Banking      *service.BankingService
	Dashboard    *service.DashboardService
	Settings     *service.SettingsService
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract the FinTrack frontend expects.
func NewRouter(svcs Services, metrics *observability.Metrics, corsOrigin string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Banking, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Authentication
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			// Public routes
			r.Post("/register", authRegisterHandler(svcs.Auth, logger))
			r.Post("/login", authLoginHandler(svcs.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svcs.Auth, logger))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(svcs.Auth, logger))
				r.Post("/logout", authLogoutHandler(svcs.Auth, logger))
				r.Get("/me", authMeHandler(svcs.Auth, logger))
				r.Post("/2fa/setup", twoFactorSetupHandler(svcs.Auth, logger))
				r.Post("/2fa/verify", twoFactorVerifyHandler(svcs.Auth, logger))
				r.Post("/2fa/disable", twoFactorDisableHandler(svcs.Auth, logger))
				r.Get("/2fa/status", twoFactorStatusHandler(svcs.Auth, logger))
			})
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// =============================================
			// Transactions
			// =============================================
			r.Get("/transactions", listTransactionsHandler(svcs.Transactions, logger))
			r.Post("/transactions", createTransactionHandler(svcs.Transactions, logger))
			r.Put("/transactions/{transactionId}", updateTransactionHandler(svcs.Transactions, logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svcs.Transactions, logger))
			r.Post("/transactions/accept-imported", acceptImportedHandler(svcs.Transactions, svcs.Banking, logger))

			// =============================================
			// Budgets
			// =============================================
			r.Get("/budgets/status", budgetStatusHandler(svcs.Budgets, logger))
			r.Post("/budgets", createBudgetHandler(svcs.Budgets, logger))
			r.Put("/budgets/{budgetId}", updateBudgetHandler(svcs.Budgets, logger))
			r.Delete("/budgets/{budgetId}", deleteBudgetHandler(svcs.Budgets, logger))
			r.Post("/budgets/validate", validateBudgetHandler(svcs.Budgets, logger))

			// =============================================
			// Open banking
			// =============================================
			r.Get("/banking/banks", listBanksHandler(svcs.Banking, logger))
			r.Post("/banking/banks/{bankId}/connect", connectBankHandler(svcs.Banking, logger))
			r.Delete("/banking/banks/{bankId}", disconnectBankHandler(svcs.Banking, logger))
			r.Get("/banking/accounts", listConnectedAccountsHandler(svcs.Banking, logger))
			r.Post("/banking/sync", syncHandler(svcs.Banking, logger))
			r.Post("/banking/accounts/{accountId}/sync", syncHandler(svcs.Banking, logger))
			r.Get("/banking/transactions", listImportedTransactionsHandler(svcs.Banking, logger))
			r.Get("/banking/health", connectionHealthHandler(svcs.Banking, logger))

			// =============================================
			// Dashboard
			// =============================================
			r.Get("/dashboard/summary", dashboardSummaryHandler(svcs.Dashboard, logger))

			// =============================================
			// Settings
			// =============================================
			r.Get("/settings", getSettingsHandler(svcs.Settings, logger))
			r.Put("/settings", updateSettingsHandler(svcs.Settings, logger))

			// =============================================
			// Metrics summary
			// =============================================
			r.Get("/metrics/summary", metricsSummaryHandler(metrics, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "fintrack-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if bankSvc != nil {
			start := time.Now()
			_, err := bankSvc.Banks(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "banking", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func metricsSummaryHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/metrics/summary")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
