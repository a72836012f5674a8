package budget

import (
	"strconv"
	"strings"

	"github.com/fintrack/fintrack-go/internal/domain"
)

// ValidateBudget checks a budget draft for form submission. It never
// returns an error: problems come back as a field-keyed message map for
// inline display.
func ValidateBudget(draft domain.BudgetDraft) domain.ValidationResult {
	errs := make(map[string]string)

	if strings.TrimSpace(draft.Category) == "" {
		errs["category"] = "Category is required"
	}

	amountStr := strings.TrimSpace(draft.Amount)
	switch {
	case amountStr == "":
		errs["amount"] = "Amount must be greater than 0"
	default:
		amount, err := strconv.ParseFloat(amountStr, 64)
		switch {
		case err != nil:
			errs["amount"] = "Amount must be a number"
		case amount <= 0:
			errs["amount"] = "Amount must be greater than 0"
		case amount > domain.MaxBudgetAmount:
			errs["amount"] = "Amount cannot exceed 1,000,000"
		}
	}

	if draft.Period != "" {
		switch draft.Period {
		case domain.PeriodWeekly, domain.PeriodMonthly, domain.PeriodYearly:
		default:
			errs["period"] = "Period must be weekly, monthly or yearly"
		}
	}

	return domain.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
