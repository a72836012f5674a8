package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/client"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
)

func testConfig() resilience.Config {
	return resilience.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 5,
	}
}

func TestListTransactions_NormalizesWirePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "t1", "transaction_type": "expense", "amount": "15.50", "category": "Food & Dining", "date": "2024-06-10T12:00:00Z"},
			{"id": "t2", "transaction_type": "expense", "amount": "oops", "category": "Shopping", "date": "2024-06-11"}
		]`))
	}))
	defer srv.Close()

	c := client.NewTransactionsClient(srv.Client(), srv.URL,
		resilience.NewCircuitBreaker("test"), testConfig())

	txns, err := c.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if txns[0].Amount != 15.50 || txns[0].Date != "2024-06-10" {
		t.Errorf("first transaction not normalized: %+v", txns[0])
	}
	if txns[1].Amount != 0 {
		t.Errorf("garbage amount should collapse to 0, got %v", txns[1].Amount)
	}
}

func TestCreateTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "t9", "transaction_type": "expense", "amount": 20, "category": "Food & Dining", "date": "2024-06-12"}`))
	}))
	defer srv.Close()

	c := client.NewTransactionsClient(srv.Client(), srv.URL,
		resilience.NewCircuitBreaker("test"), testConfig())

	created, err := c.CreateTransaction(context.Background(), &domain.TransactionDraft{
		Type:     domain.TransactionExpense,
		Amount:   20,
		Category: "Food & Dining",
		Date:     "2024-06-12",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID != "t9" {
		t.Errorf("created.ID = %s", created.ID)
	}
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := client.NewTransactionsClient(srv.Client(), srv.URL,
		resilience.NewCircuitBreaker("test"), testConfig())

	err := c.DeleteTransaction(context.Background(), "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactions_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := client.NewTransactionsClient(srv.Client(), srv.URL,
		resilience.NewCircuitBreaker("test"), testConfig())

	_, err := c.ListTransactions(context.Background())
	var external *domain.ErrExternalService
	if !errors.As(err, &external) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
