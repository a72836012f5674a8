package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/budget"
	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/port"
)

var budgetTracer = otel.Tracer("service/budgets")

// transactionLister is the slice of TransactionsService the budget
// fallback path needs.
type transactionLister interface {
	List(ctx context.Context) ([]domain.Transaction, error)
}

// BudgetsService manages per-category spending limits. Status listings
// prefer the remote API's server-side figures; when it is unreachable
// the service evaluates local budgets against the transaction ledger.
type BudgetsService struct {
	remote       port.BudgetAPI
	store        port.KeyValue
	transactions transactionLister
	clock        port.Clock
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewBudgetsService creates a new budgets service.
func NewBudgetsService(
	remote port.BudgetAPI,
	store port.KeyValue,
	transactions transactionLister,
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BudgetsService {
	return &BudgetsService{
		remote:       remote,
		store:        store,
		transactions: transactions,
		clock:        clock,
		metrics:      metrics,
		logger:       logger,
	}
}

// ListStatuses returns every budget with its spending figures for the
// given month and year. Out-of-range month or zero year default to the
// current calendar month.
func (s *BudgetsService) ListStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetsService.ListStatuses")
	defer span.End()
	span.SetAttributes(
		attribute.Int("budget.month", month),
		attribute.Int("budget.year", year),
	)

	statuses, err := s.remote.ListBudgetStatuses(ctx, month, year)
	if err == nil {
		return statuses, nil
	}

	s.metrics.IncrExternalError("budgets")
	s.metrics.IncrFallback("budgets")
	s.logger.Warn("remote budget status failed, evaluating locally", zap.Error(err))

	budgets, loadErr := s.loadLocal()
	if loadErr != nil {
		return nil, loadErr
	}
	txns, txnErr := s.transactions.List(ctx)
	if txnErr != nil {
		return nil, txnErr
	}

	return budget.Evaluate(budgets, txns, month, year, s.clock.Now()), nil
}

// Create validates a budget draft and stores it. Category is unique:
// a second budget for the same category is a conflict.
func (s *BudgetsService) Create(ctx context.Context, draft *domain.BudgetDraft) (*domain.Budget, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetsService.Create")
	defer span.End()

	b, err := budgetFromDraft(draft)
	if err != nil {
		return nil, err
	}
	b.ID = "budget_" + uuid.NewString()

	local, err := s.loadLocal()
	if err != nil {
		return nil, err
	}
	for _, existing := range local {
		if strings.EqualFold(existing.Category, b.Category) {
			return nil, &domain.ErrConflict{Message: "budget for category already exists: " + b.Category}
		}
	}

	created, err := s.remote.CreateBudget(ctx, b)
	if err != nil {
		s.metrics.IncrExternalError("budgets")
		s.metrics.IncrFallback("budgets")
		s.logger.Warn("remote budget create failed, writing locally", zap.Error(err))
		created = b
	}

	// Write-through: the local mirror backs the fallback evaluation.
	local = append(local, *created)
	if err := s.store.Put(localstore.KeyUserBudgets, local); err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces an existing budget.
func (s *BudgetsService) Update(ctx context.Context, id string, draft *domain.BudgetDraft) (*domain.Budget, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetsService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("budget.id", id))

	b, err := budgetFromDraft(draft)
	if err != nil {
		return nil, err
	}
	b.ID = id

	local, err := s.loadLocal()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range local {
		if local[i].ID == id {
			idx = i
		} else if strings.EqualFold(local[i].Category, b.Category) {
			return nil, &domain.ErrConflict{Message: "budget for category already exists: " + b.Category}
		}
	}
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "budget", ID: id}
	}

	updated, err := s.remote.UpdateBudget(ctx, b)
	if err != nil {
		s.metrics.IncrExternalError("budgets")
		s.metrics.IncrFallback("budgets")
		updated = b
	}

	local[idx] = *updated
	if err := s.store.Put(localstore.KeyUserBudgets, local); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a budget.
func (s *BudgetsService) Delete(ctx context.Context, id string) error {
	ctx, span := budgetTracer.Start(ctx, "BudgetsService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("budget.id", id))

	local, err := s.loadLocal()
	if err != nil {
		return err
	}
	kept := local[:0:0]
	found := false
	for _, b := range local {
		if b.ID == id {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return &domain.ErrNotFound{Resource: "budget", ID: id}
	}

	if err := s.remote.DeleteBudget(ctx, id); err != nil && !isNotFound(err) {
		s.metrics.IncrExternalError("budgets")
		s.metrics.IncrFallback("budgets")
		s.logger.Warn("remote budget delete failed, removing locally", zap.Error(err))
	}

	return s.store.Put(localstore.KeyUserBudgets, kept)
}

// Validate exposes the draft validation for the pre-submit check the
// form client performs.
func (s *BudgetsService) Validate(draft *domain.BudgetDraft) domain.ValidationResult {
	return budget.ValidateBudget(*draft)
}

func (s *BudgetsService) loadLocal() ([]domain.Budget, error) {
	var budgets []domain.Budget
	if _, err := s.store.Get(localstore.KeyUserBudgets, &budgets); err != nil {
		return nil, err
	}
	return budgets, nil
}

// budgetFromDraft validates and converts a draft. Validation errors are
// reported per field through ErrValidation on the first failing field.
func budgetFromDraft(draft *domain.BudgetDraft) (*domain.Budget, error) {
	result := budget.ValidateBudget(*draft)
	if !result.IsValid {
		for _, field := range []string{"category", "amount", "period"} {
			if msg, ok := result.Errors[field]; ok {
				return nil, &domain.ErrValidation{Field: field, Message: msg}
			}
		}
	}

	amount, _ := strconv.ParseFloat(strings.TrimSpace(draft.Amount), 64)
	period := draft.Period
	if period == "" {
		period = domain.PeriodMonthly
	}

	return &domain.Budget{
		Category: strings.TrimSpace(draft.Category),
		Amount:   amount,
		Period:   period,
	}, nil
}
