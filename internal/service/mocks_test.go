package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/port"
)

// memStore is an in-memory port.KeyValue.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// nopCache is a pass-through port.Cache.
type nopCache[T any] struct{}

func (nopCache[T]) Get(string) (T, bool) { var zero T; return zero, false }
func (nopCache[T]) Set(string, T)        {}
func (nopCache[T]) Delete(string)        {}
func (nopCache[T]) Flush()               {}

func fixedClock(t time.Time) port.Clock {
	return port.ClockFunc(func() time.Time { return t })
}

// mockTransactionAPI scripts the remote transaction resource.
type mockTransactionAPI struct {
	listFn   func(ctx context.Context) ([]domain.Transaction, error)
	createFn func(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error)
	updateFn func(ctx context.Context, id string, draft *domain.TransactionDraft) (*domain.Transaction, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockTransactionAPI) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return m.listFn(ctx)
}

func (m *mockTransactionAPI) CreateTransaction(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	return m.createFn(ctx, draft)
}

func (m *mockTransactionAPI) UpdateTransaction(ctx context.Context, id string, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	return m.updateFn(ctx, id, draft)
}

func (m *mockTransactionAPI) DeleteTransaction(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// mockBudgetAPI scripts the remote budget resource.
type mockBudgetAPI struct {
	listFn   func(ctx context.Context, month, year int) ([]domain.BudgetStatus, error)
	createFn func(ctx context.Context, b *domain.Budget) (*domain.Budget, error)
	updateFn func(ctx context.Context, b *domain.Budget) (*domain.Budget, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockBudgetAPI) ListBudgetStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
	return m.listFn(ctx, month, year)
}

func (m *mockBudgetAPI) CreateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	return m.createFn(ctx, b)
}

func (m *mockBudgetAPI) UpdateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	return m.updateFn(ctx, b)
}

func (m *mockBudgetAPI) DeleteBudget(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// mockBankingAPI scripts the remote bank-aggregation resource. The zero
// value fails every call, which is the fallback scenario.
type mockBankingAPI struct {
	banksFn      func(ctx context.Context) ([]domain.BankDescriptor, error)
	connectFn    func(ctx context.Context, bankID string) (*domain.ConnectResult, error)
	accountsFn   func(ctx context.Context) ([]domain.ConnectedAccount, error)
	syncFn       func(ctx context.Context, accountID string) (*domain.SyncResult, error)
	importedFn   func(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error)
	removeFn     func(ctx context.Context, ids []string) (int, error)
	disconnectFn func(ctx context.Context, bankID string) (*domain.DisconnectResult, error)
}

func (m *mockBankingAPI) Banks(ctx context.Context) ([]domain.BankDescriptor, error) {
	if m.banksFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.banksFn(ctx)
}

func (m *mockBankingAPI) Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
	if m.connectFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.connectFn(ctx, bankID)
}

func (m *mockBankingAPI) Accounts(ctx context.Context) ([]domain.ConnectedAccount, error) {
	if m.accountsFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.accountsFn(ctx)
}

func (m *mockBankingAPI) Sync(ctx context.Context, accountID string) (*domain.SyncResult, error) {
	if m.syncFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.syncFn(ctx, accountID)
}

func (m *mockBankingAPI) ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error) {
	if m.importedFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.importedFn(ctx, accountID)
}

func (m *mockBankingAPI) RemoveImported(ctx context.Context, ids []string) (int, error) {
	if m.removeFn == nil {
		return 0, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.removeFn(ctx, ids)
}

func (m *mockBankingAPI) Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error) {
	if m.disconnectFn == nil {
		return nil, &domain.ErrExternalService{Service: "banking", Err: context.DeadlineExceeded}
	}
	return m.disconnectFn(ctx, bankID)
}
