package client

import (
	"context"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
)

// BankingClient talks to the remote bank-aggregation resource. It
// implements the same surface as the local simulator, which is what
// makes the transparent fallback possible.
type BankingClient struct {
	base
}

// NewBankingClient creates a new BankingClient.
func NewBankingClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *BankingClient {
	return &BankingClient{base: newBase(httpClient, baseURL, cb, cfg)}
}

// Banks fetches the catalog of connectable banks.
func (c *BankingClient) Banks(ctx context.Context) ([]domain.BankDescriptor, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.Banks")
	defer span.End()

	var banks []domain.BankDescriptor
	if err := c.doJSON(ctx, "banking", http.MethodGet, "/v1/banking/banks", nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// Connect links a bank through the aggregator.
func (c *BankingClient) Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.Connect")
	defer span.End()
	span.SetAttributes(attribute.String("bank.id", bankID))

	var res domain.ConnectResult
	if err := c.doJSON(ctx, "banking", http.MethodPost, "/v1/banking/banks/"+bankID+"/connect", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Accounts fetches all connected accounts.
func (c *BankingClient) Accounts(ctx context.Context) ([]domain.ConnectedAccount, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.Accounts")
	defer span.End()

	var accounts []domain.ConnectedAccount
	if err := c.doJSON(ctx, "banking", http.MethodGet, "/v1/banking/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Sync pulls fresh transactions for one account, or all accounts when
// accountID is empty.
func (c *BankingClient) Sync(ctx context.Context, accountID string) (*domain.SyncResult, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	path := "/v1/banking/sync"
	if accountID != "" {
		path = "/v1/banking/accounts/" + accountID + "/sync"
	}

	var res struct {
		Success              bool   `json:"success"`
		TransactionsImported int    `json:"transactions_imported"`
		AccountsSynced       int    `json:"accounts_synced"`
		Transactions         []struct {
			wireTransaction
			AccountID    string `json:"account_id"`
			BankID       string `json:"bank_id"`
			MerchantName string `json:"merchant_name"`
			Status       string `json:"status"`
			Imported     bool   `json:"imported"`
		} `json:"transactions"`
	}
	if err := c.doJSON(ctx, "banking", http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}

	out := &domain.SyncResult{
		Success:              res.Success,
		TransactionsImported: res.TransactionsImported,
		AccountsSynced:       res.AccountsSynced,
	}
	for _, w := range res.Transactions {
		out.Transactions = append(out.Transactions, domain.ImportedTransaction{
			Transaction:  w.toDomain(),
			AccountID:    w.AccountID,
			BankID:       w.BankID,
			MerchantName: w.MerchantName,
			Status:       w.Status,
			Imported:     w.Imported,
		})
	}
	return out, nil
}

// ImportedTransactions fetches the staged imports, optionally filtered
// to one account.
func (c *BankingClient) ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.ImportedTransactions")
	defer span.End()

	path := "/v1/banking/transactions"
	if accountID != "" {
		path += "?account_id=" + accountID
	}

	var imported []domain.ImportedTransaction
	if err := c.doJSON(ctx, "banking", http.MethodGet, path, nil, &imported); err != nil {
		return nil, err
	}
	return imported, nil
}

// RemoveImported drops staged transactions that were accepted into the
// main ledger.
func (c *BankingClient) RemoveImported(ctx context.Context, ids []string) (int, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.RemoveImported")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions.count", len(ids)))

	body := struct {
		TransactionIDs []string `json:"transaction_ids"`
	}{TransactionIDs: ids}

	var res struct {
		Removed int `json:"removed"`
	}
	if err := c.doJSON(ctx, "banking", http.MethodPost, "/v1/banking/transactions/remove", body, &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

// Disconnect unlinks a bank.
func (c *BankingClient) Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.Disconnect")
	defer span.End()
	span.SetAttributes(attribute.String("bank.id", bankID))

	var res domain.DisconnectResult
	if err := c.doJSON(ctx, "banking", http.MethodDelete, "/v1/banking/banks/"+bankID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
