package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/service"
)

var remoteDown = &domain.ErrExternalService{Service: "budgets", Err: errors.New("down")}

type staticTxnLister []domain.Transaction

func (l staticTxnLister) List(ctx context.Context) ([]domain.Transaction, error) {
	return l, nil
}

func newBudgetService(remote *mockBudgetAPI, store *memStore, txns []domain.Transaction, now time.Time) *service.BudgetsService {
	return service.NewBudgetsService(remote, store, staticTxnLister(txns),
		fixedClock(now), observability.NewMetrics(), zap.NewNop())
}

func failingBudgetAPI() *mockBudgetAPI {
	return &mockBudgetAPI{
		listFn: func(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
			return nil, remoteDown
		},
		createFn: func(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
			return nil, remoteDown
		},
		updateFn: func(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
			return nil, remoteDown
		},
		deleteFn: func(ctx context.Context, id string) error {
			return remoteDown
		},
	}
}

func TestBudgetsListStatuses_PrefersRemote(t *testing.T) {
	remote := &mockBudgetAPI{
		listFn: func(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
			return []domain.BudgetStatus{{Budget: domain.Budget{ID: "remote_b1"}}}, nil
		},
	}
	svc := newBudgetService(remote, newMemStore(), nil, time.Now())

	statuses, err := svc.ListStatuses(context.Background(), 6, 2024)
	if err != nil {
		t.Fatalf("ListStatuses: %v", err)
	}
	if len(statuses) != 1 || statuses[0].ID != "remote_b1" {
		t.Errorf("expected remote statuses, got %+v", statuses)
	}
}

func TestBudgetsListStatuses_FallsBackToLocalEvaluation(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	store := newMemStore()
	store.Put(localstore.KeyUserBudgets, []domain.Budget{
		{ID: "b1", Category: "Food & Dining", Amount: 500, Period: domain.PeriodMonthly},
	})
	txns := []domain.Transaction{
		{Type: "expense", Amount: 450, Category: "Food & Dining", Date: "2024-06-10"},
		{Type: "expense", Amount: 100, Category: "Food & Dining", Date: "2024-05-10"}, // other month
	}
	svc := newBudgetService(failingBudgetAPI(), store, txns, now)

	statuses, err := svc.ListStatuses(context.Background(), 6, 2024)
	if err != nil {
		t.Fatalf("ListStatuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Spent != 450 {
		t.Errorf("spent = %v, want 450", statuses[0].Spent)
	}
	if statuses[0].Status != domain.StatusWarning {
		t.Errorf("status = %s, want warning", statuses[0].Status)
	}
}

func TestBudgetsCreate_WriteThrough(t *testing.T) {
	remote := &mockBudgetAPI{
		createFn: func(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
			return b, nil
		},
	}
	store := newMemStore()
	svc := newBudgetService(remote, store, nil, time.Now())

	created, err := svc.Create(context.Background(), &domain.BudgetDraft{
		Category: " Shopping ", Amount: "300",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Category != "Shopping" {
		t.Errorf("category not trimmed: %q", created.Category)
	}
	if created.Period != domain.PeriodMonthly {
		t.Errorf("expected monthly default, got %s", created.Period)
	}

	var local []domain.Budget
	if ok, _ := store.Get(localstore.KeyUserBudgets, &local); !ok || len(local) != 1 {
		t.Fatalf("expected write-through to local store, got %+v", local)
	}
}

func TestBudgetsCreate_DuplicateCategory(t *testing.T) {
	store := newMemStore()
	store.Put(localstore.KeyUserBudgets, []domain.Budget{
		{ID: "b1", Category: "Shopping", Amount: 100, Period: domain.PeriodMonthly},
	})
	svc := newBudgetService(failingBudgetAPI(), store, nil, time.Now())

	_, err := svc.Create(context.Background(), &domain.BudgetDraft{Category: "shopping", Amount: "50"})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBudgetsCreate_InvalidAmount(t *testing.T) {
	svc := newBudgetService(failingBudgetAPI(), newMemStore(), nil, time.Now())

	_, err := svc.Create(context.Background(), &domain.BudgetDraft{Category: "Food", Amount: "abc"})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if verr.Field != "amount" {
		t.Errorf("field = %s", verr.Field)
	}
}

func TestBudgetsUpdate_NotFound(t *testing.T) {
	svc := newBudgetService(failingBudgetAPI(), newMemStore(), nil, time.Now())

	_, err := svc.Update(context.Background(), "missing", &domain.BudgetDraft{Category: "Food", Amount: "50"})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBudgetsDelete_RemovesLocallyDespiteRemoteFailure(t *testing.T) {
	store := newMemStore()
	store.Put(localstore.KeyUserBudgets, []domain.Budget{
		{ID: "b1", Category: "Shopping", Amount: 100, Period: domain.PeriodMonthly},
	})
	svc := newBudgetService(failingBudgetAPI(), store, nil, time.Now())

	if err := svc.Delete(context.Background(), "b1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var local []domain.Budget
	store.Get(localstore.KeyUserBudgets, &local)
	if len(local) != 0 {
		t.Errorf("expected budget removed locally, got %+v", local)
	}
}
