package handler

import (
	"net/http"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Open banking
// ============================================================

func listBanksHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/banking/banks")
		defer span.End()

		banks, err := svc.Banks(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, banks)
	}
}

func connectBankHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/banking/banks/{bankId}/connect")
		defer span.End()

		bankID := chi.URLParam(r, "bankId")
		if bankID == "" {
			writeError(w, http.StatusBadRequest, "bank_id is required")
			return
		}
		span.SetAttributes(attribute.String("bank.id", bankID))

		result, err := svc.Connect(ctx, bankID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func listConnectedAccountsHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/banking/accounts")
		defer span.End()

		accounts, err := svc.Accounts(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("accounts.count", len(accounts)))

		writeJSON(w, http.StatusOK, accounts)
	}
}

// syncHandler serves both the all-accounts and the per-account sync
// routes; an empty accountId means sync everything.
func syncHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/banking/sync")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		if accountID != "" {
			span.SetAttributes(attribute.String("account.id", accountID))
		}

		result, err := svc.Sync(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("transactions.imported", result.TransactionsImported))

		writeJSON(w, http.StatusOK, result)
	}
}

func listImportedTransactionsHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/banking/transactions")
		defer span.End()

		accountID := r.URL.Query().Get("account_id")
		txns, err := svc.ImportedTransactions(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("transactions.count", len(txns)))

		writeJSON(w, http.StatusOK, txns)
	}
}

func disconnectBankHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/banking/banks/{bankId}")
		defer span.End()

		bankID := chi.URLParam(r, "bankId")
		if bankID == "" {
			writeError(w, http.StatusBadRequest, "bank_id is required")
			return
		}
		span.SetAttributes(attribute.String("bank.id", bankID))

		result, err := svc.Disconnect(ctx, bankID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func connectionHealthHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/banking/health")
		defer span.End()

		health, err := svc.Health(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if health == nil {
			health = []domain.ConnectionHealth{}
		}

		writeJSON(w, http.StatusOK, health)
	}
}
