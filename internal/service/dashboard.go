package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fintrack/fintrack-go/internal/budget"
	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/port"
)

var dashTracer = otel.Tracer("service/dashboard")

const recentTransactionLimit = 5

// budgetStatusLister is the slice of BudgetsService the dashboard needs.
type budgetStatusLister interface {
	ListStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error)
}

// DashboardService aggregates one month of activity into a single
// summary payload, fetching transactions and budget statuses
// concurrently.
type DashboardService struct {
	transactions transactionLister
	budgets      budgetStatusLister
	clock        port.Clock
	logger       *zap.Logger
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(transactions transactionLister, budgets budgetStatusLister, clock port.Clock, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		transactions: transactions,
		budgets:      budgets,
		clock:        clock,
		logger:       logger,
	}
}

// Summary builds the dashboard for the given month and year; zero
// values default to the current calendar month.
func (s *DashboardService) Summary(ctx context.Context, month, year int) (*domain.DashboardSummary, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.Summary")
	defer span.End()

	now := s.clock.Now()
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	span.SetAttributes(
		attribute.Int("summary.month", month),
		attribute.Int("summary.year", year),
	)

	var (
		txns     []domain.Transaction
		statuses []domain.BudgetStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.transactions.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		statuses, err = s.budgets.ListStatuses(gctx, month, year)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &domain.DashboardSummary{
		Month:   month,
		Year:    year,
		Budgets: statuses,
	}

	income := decimal.Zero
	expenses := decimal.Zero
	type catAgg struct {
		total decimal.Decimal
		count int
	}
	categories := map[string]*catAgg{}

	for _, t := range txns {
		if !budget.InMonth(t.Date, month, year) {
			continue
		}
		summary.Count++
		amount := decimal.NewFromFloat(t.Amount)

		switch t.Type {
		case domain.TransactionIncome:
			income = income.Add(amount)
		case domain.TransactionExpense:
			expenses = expenses.Add(amount)

			cat := t.Category
			if cat == "" {
				cat = domain.DefaultCategory
			}
			agg, ok := categories[cat]
			if !ok {
				agg = &catAgg{}
				categories[cat] = agg
			}
			agg.total = agg.total.Add(amount)
			agg.count++
		}
	}

	summary.TotalIncome, _ = income.Float64()
	summary.TotalExpenses, _ = expenses.Float64()
	summary.Net, _ = income.Sub(expenses).Float64()

	for cat, agg := range categories {
		total, _ := agg.total.Float64()
		summary.Categories = append(summary.Categories, domain.CategoryTotal{
			Category: cat,
			Total:    total,
			Count:    agg.count,
		})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		if summary.Categories[i].Total != summary.Categories[j].Total {
			return summary.Categories[i].Total > summary.Categories[j].Total
		}
		return summary.Categories[i].Category < summary.Categories[j].Category
	})

	// Transactions arrive newest first, so recent is just a prefix.
	if len(txns) > recentTransactionLimit {
		summary.Recent = txns[:recentTransactionLimit]
	} else {
		summary.Recent = txns
	}

	return summary, nil
}
