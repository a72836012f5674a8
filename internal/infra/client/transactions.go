package client

import (
	"context"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
)

// wireTransaction is the loosely-typed shape the remote API sends.
type wireTransaction struct {
	ID          string      `json:"id"`
	Type        string      `json:"transaction_type"`
	Amount      looseAmount `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        looseDate   `json:"date"`
	ExternalID  string      `json:"external_id"`
	Source      string      `json:"source"`
}

func (w wireTransaction) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          w.ID,
		Type:        w.Type,
		Amount:      float64(w.Amount),
		Category:    w.Category,
		Description: w.Description,
		Date:        string(w.Date),
		ExternalID:  w.ExternalID,
		Source:      w.Source,
	}
}

// TransactionsClient talks to the remote transaction resource.
type TransactionsClient struct {
	base
}

// NewTransactionsClient creates a new TransactionsClient.
func NewTransactionsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *TransactionsClient {
	return &TransactionsClient{base: newBase(httpClient, baseURL, cb, cfg)}
}

// ListTransactions fetches all transactions, normalizing amounts and
// dates on the way in.
func (c *TransactionsClient) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionsClient.ListTransactions")
	defer span.End()

	var wire []wireTransaction
	if err := c.doJSON(ctx, "transactions", http.MethodGet, "/v1/transactions", nil, &wire); err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	span.SetAttributes(attribute.Int("transactions.count", len(out)))
	return out, nil
}

// CreateTransaction posts a new transaction and returns the stored record.
func (c *TransactionsClient) CreateTransaction(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionsClient.CreateTransaction")
	defer span.End()

	var wire wireTransaction
	if err := c.doJSON(ctx, "transactions", http.MethodPost, "/v1/transactions", draft, &wire); err != nil {
		return nil, err
	}
	t := wire.toDomain()
	return &t, nil
}

// UpdateTransaction replaces an existing transaction.
func (c *TransactionsClient) UpdateTransaction(ctx context.Context, id string, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionsClient.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	var wire wireTransaction
	if err := c.doJSON(ctx, "transactions", http.MethodPut, "/v1/transactions/"+id, draft, &wire); err != nil {
		return nil, err
	}
	t := wire.toDomain()
	return &t, nil
}

// DeleteTransaction removes a transaction.
func (c *TransactionsClient) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "TransactionsClient.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	return c.doJSON(ctx, "transactions", http.MethodDelete, "/v1/transactions/"+id, nil, nil)
}
