package openbanking

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/fintrack-go/internal/domain"
)

// generationWindowDays bounds how far back generated transactions reach.
const generationWindowDays = 60

// Generator produces plausible transaction history for an account by
// sampling the catalog's merchant table. Callers inject the rand source
// so tests can pin the output.
type Generator struct {
	merchants []Merchant
	rng       *rand.Rand
}

// NewGenerator builds a generator over the given merchant table.
func NewGenerator(merchants []Merchant, rng *rand.Rand) *Generator {
	return &Generator{merchants: merchants, rng: rng}
}

// Generate returns count transactions for the account, dated within the
// last sixty days before now and sorted newest first.
func (g *Generator) Generate(accountID, bankID string, count int, now time.Time) []domain.ImportedTransaction {
	txns := make([]domain.ImportedTransaction, 0, count)
	for i := 0; i < count; i++ {
		m := g.merchants[g.rng.Intn(len(g.merchants))]

		amount := m.Min + g.rng.Float64()*(m.Max-m.Min)
		amount = math.Round(amount*100) / 100

		daysAgo := g.rng.Intn(generationWindowDays)
		date := now.AddDate(0, 0, -daysAgo)

		kind := domain.TransactionExpense
		if m.Income {
			kind = domain.TransactionIncome
		}

		txns = append(txns, domain.ImportedTransaction{
			Transaction: domain.Transaction{
				ID:          fmt.Sprintf("imported_%s", uuid.NewString()),
				Type:        kind,
				Amount:      amount,
				Category:    m.Category,
				Description: m.Name,
				Date:        date.Format("2006-01-02"),
			},
			AccountID:    accountID,
			BankID:       bankID,
			MerchantName: m.Name,
			Status:       "completed",
			Imported:     true,
		})
	}

	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date > txns[j].Date
	})
	return txns
}
