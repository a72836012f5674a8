package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
)

// wireBudgetStatus is the loosely-typed budget status the remote API
// sends. Only the numeric fields need normalization.
type wireBudgetStatus struct {
	ID            string      `json:"id"`
	Category      string      `json:"category"`
	Amount        looseAmount `json:"amount"`
	Period        string      `json:"period"`
	Spent         looseAmount `json:"spent"`
	Remaining     looseAmount `json:"remaining"`
	OverAmount    looseAmount `json:"over_amount"`
	Percentage    looseAmount `json:"percentage"`
	Status        string      `json:"status"`
	DaysRemaining int         `json:"days_remaining"`
}

func (w wireBudgetStatus) toDomain() domain.BudgetStatus {
	return domain.BudgetStatus{
		Budget: domain.Budget{
			ID:       w.ID,
			Category: w.Category,
			Amount:   float64(w.Amount),
			Period:   w.Period,
		},
		Spent:         float64(w.Spent),
		Remaining:     float64(w.Remaining),
		OverAmount:    float64(w.OverAmount),
		Percentage:    float64(w.Percentage),
		Status:        w.Status,
		DaysRemaining: w.DaysRemaining,
	}
}

// BudgetsClient talks to the remote budget resource.
type BudgetsClient struct {
	base
}

// NewBudgetsClient creates a new BudgetsClient.
func NewBudgetsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *BudgetsClient {
	return &BudgetsClient{base: newBase(httpClient, baseURL, cb, cfg)}
}

// ListBudgetStatuses fetches budgets with server-computed spending
// figures for the given month and year.
func (c *BudgetsClient) ListBudgetStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
	ctx, span := tracer.Start(ctx, "BudgetsClient.ListBudgetStatuses")
	defer span.End()
	span.SetAttributes(
		attribute.Int("budget.month", month),
		attribute.Int("budget.year", year),
	)

	path := fmt.Sprintf("/v1/budgets/status?month=%d&year=%d", month, year)
	var wire []wireBudgetStatus
	if err := c.doJSON(ctx, "budgets", http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	out := make([]domain.BudgetStatus, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}

// CreateBudget posts a new budget.
func (c *BudgetsClient) CreateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "BudgetsClient.CreateBudget")
	defer span.End()

	var created domain.Budget
	if err := c.doJSON(ctx, "budgets", http.MethodPost, "/v1/budgets", b, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateBudget replaces an existing budget.
func (c *BudgetsClient) UpdateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "BudgetsClient.UpdateBudget")
	defer span.End()
	span.SetAttributes(attribute.String("budget.id", b.ID))

	var updated domain.Budget
	if err := c.doJSON(ctx, "budgets", http.MethodPut, "/v1/budgets/"+b.ID, b, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteBudget removes a budget.
func (c *BudgetsClient) DeleteBudget(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "BudgetsClient.DeleteBudget")
	defer span.End()
	span.SetAttributes(attribute.String("budget.id", id))

	return c.doJSON(ctx, "budgets", http.MethodDelete, "/v1/budgets/"+id, nil, nil)
}
