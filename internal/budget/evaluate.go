// Package budget computes per-budget spending status from raw
// transaction lists. Everything here is pure: no I/O, no clocks other
// than the explicit now argument, deterministic for identical inputs.
package budget

import (
	"math"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"

	"github.com/shopspring/decimal"
)

// Evaluate computes one BudgetStatus per input budget, in input order,
// from spending in the target calendar month. month is 1-indexed; a zero
// month or year defaults to the calendar month/year of now.
//
// Only expense transactions dated inside the target month count toward
// spending. Transactions without a category are bucketed under
// domain.DefaultCategory. Category matching is case-sensitive and exact.
func Evaluate(budgets []domain.Budget, transactions []domain.Transaction, month, year int, now time.Time) []domain.BudgetStatus {
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}

	spending := spendingByCategory(transactions, month, year)

	statuses := make([]domain.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		amount := sanitizeAmount(b.Amount)
		spentDec := spending[b.Category]
		spent, _ := spentDec.Float64()

		percentage := 0.0
		if amount > 0 {
			pct, _ := spentDec.
				Div(decimal.NewFromFloat(amount)).
				Mul(decimal.NewFromInt(100)).
				Float64()
			percentage = pct
		}

		statuses = append(statuses, domain.BudgetStatus{
			Budget:        b,
			Spent:         spent,
			Remaining:     math.Max(0, amount-spent),
			OverAmount:    math.Max(0, spent-amount),
			Percentage:    math.Min(100, percentage),
			Status:        StatusForPercentage(percentage),
			DaysRemaining: DaysRemaining(b.Period, month, year, now),
		})
	}
	return statuses
}

// spendingByCategory sums expense amounts for the target month, keyed by
// category. Decimal arithmetic keeps repeated cent-level additions exact.
func spendingByCategory(transactions []domain.Transaction, month, year int) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		if t.Type != domain.TransactionExpense {
			continue
		}
		ty, tm, ok := calendarMonth(t.Date)
		if !ok || tm != month || ty != year {
			continue
		}
		category := t.Category
		if category == "" {
			category = domain.DefaultCategory
		}
		amount := sanitizeAmount(t.Amount)
		sums[category] = sums[category].Add(decimal.NewFromFloat(amount))
	}
	return sums
}

// calendarMonth extracts the year and 1-indexed month from a date string.
// Accepts plain YYYY-MM-DD dates as well as RFC 3339 timestamps.
func calendarMonth(date string) (year, month int, ok bool) {
	if len(date) > 10 {
		date = date[:10]
	}
	d, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return 0, 0, false
	}
	return d.Year(), int(d.Month()), true
}

// InMonth reports whether a date string falls in the given calendar
// month. Accepts the same date shapes as Evaluate.
func InMonth(date string, month, year int) bool {
	ty, tm, ok := calendarMonth(date)
	return ok && tm == month && ty == year
}

// sanitizeAmount guards against NaN/Inf leaking into percentage or
// currency arithmetic: anything non-finite or negative counts as zero.
func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// StatusForPercentage maps the unclamped percentage-of-limit to a status
// tier.
func StatusForPercentage(percentage float64) string {
	switch {
	case percentage >= 100:
		return domain.StatusOver
	case percentage >= 80:
		return domain.StatusWarning
	case percentage >= 60:
		return domain.StatusCaution
	default:
		return domain.StatusGood
	}
}

// DaysRemaining returns the whole days left in the budget period,
// counting from today (clamped into the target window) to the period's
// last day. Returns 0 once the period has ended.
//
// Weekly periods run Monday through Sunday of the week containing now;
// monthly and yearly periods follow the target month/year arguments.
func DaysRemaining(period string, month, year int, now time.Time) int {
	switch period {
	case domain.PeriodWeekly:
		wd := int(now.Weekday()) // Sunday == 0
		if wd == 0 {
			return 0
		}
		return 7 - wd
	case domain.PeriodYearly:
		today := time.Date(year, now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		lastDay := time.Date(year, time.December, 31, 0, 0, 0, 0, time.Local)
		return wholeDaysBetween(today, lastDay)
	default: // monthly
		return daysRemainingInMonth(month, year, now)
	}
}

// daysRemainingInMonth counts days from today through the last day of
// the target month. Constructing today with the target month normalizes
// out-of-range days past the month end, which collapses to 0.
func daysRemainingInMonth(month, year int, now time.Time) int {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.Local)
	today := time.Date(year, time.Month(month), now.Day(), 0, 0, 0, 0, time.Local)
	return wholeDaysBetween(today, lastDay)
}

func wholeDaysBetween(from, to time.Time) int {
	if from.After(to) {
		return 0
	}
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}
