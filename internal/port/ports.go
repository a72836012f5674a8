// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
)

// Clock abstracts wall-clock reads so business logic that depends on
// "now" (budget windows, connection health, generated transaction dates)
// stays testable with a fixed time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Flush()
}

// KeyValue is the local persistent cache: a few fixed keys, each holding
// one JSON document, rewritten in full on every mutation.
type KeyValue interface {
	Get(key string, dest any) (bool, error)
	Put(key string, value any) error
	Delete(key string) error
}

// TransactionAPI is the remote transaction REST resource.
type TransactionAPI interface {
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, draft *domain.TransactionDraft) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// BudgetAPI is the remote budget REST resource. ListBudgetStatuses
// returns server-computed status fields equivalent to a local Evaluate.
type BudgetAPI interface {
	ListBudgetStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error)
	CreateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error)
	UpdateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
}

// OpenBankingAPI is the remote bank-aggregation resource. The simulator
// implements the same surface for the fallback path.
type OpenBankingAPI interface {
	Banks(ctx context.Context) ([]domain.BankDescriptor, error)
	Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error)
	Accounts(ctx context.Context) ([]domain.ConnectedAccount, error)
	Sync(ctx context.Context, accountID string) (*domain.SyncResult, error)
	ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error)
	RemoveImported(ctx context.Context, ids []string) (int, error)
	Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error)
}
