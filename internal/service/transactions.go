// Package service provides the business logic layer (use cases).
// Every service is remote-first: it tries the finance API, and on any
// failure serves or writes local state so the app keeps working offline.
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/port"
)

var txnTracer = otel.Tracer("service/transactions")

const transactionsCacheKey = "transactions"

// TransactionsService manages the transaction ledger. Reads and writes
// go to the remote API first; when it is unreachable the local mirror
// under userTransactions takes over.
type TransactionsService struct {
	remote  port.TransactionAPI
	store   port.KeyValue
	cache   port.Cache[[]domain.Transaction]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewTransactionsService creates a new transactions service.
func NewTransactionsService(
	remote port.TransactionAPI,
	store port.KeyValue,
	cache port.Cache[[]domain.Transaction],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TransactionsService {
	return &TransactionsService{
		remote:  remote,
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// List returns all transactions, newest first.
func (s *TransactionsService) List(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionsService.List")
	defer span.End()

	if cached, ok := s.cache.Get(transactionsCacheKey); ok {
		s.metrics.IncrCacheHit("finance")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("finance")

	txns, err := s.remote.ListTransactions(ctx)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		s.metrics.IncrFallback("transactions")
		s.logger.Warn("remote transaction list failed, serving local mirror", zap.Error(err))

		if _, err := s.store.Get(localstore.KeyUserTransactions, &txns); err != nil {
			return nil, err
		}
		sortByDateDesc(txns)
		return txns, nil
	}

	sortByDateDesc(txns)
	s.cache.Set(transactionsCacheKey, txns)
	if err := s.store.Put(localstore.KeyUserTransactions, txns); err != nil {
		s.logger.Warn("failed to mirror transactions locally", zap.Error(err))
	}
	span.SetAttributes(attribute.Int("transactions.count", len(txns)))
	return txns, nil
}

// Create validates and stores a new transaction.
func (s *TransactionsService) Create(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionsService.Create")
	defer span.End()

	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	created, err := s.remote.CreateTransaction(ctx, draft)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		s.metrics.IncrFallback("transactions")
		s.logger.Warn("remote transaction create failed, writing locally", zap.Error(err))

		created = &domain.Transaction{
			ID:          "local_" + uuid.NewString(),
			Type:        draft.Type,
			Amount:      draft.Amount,
			Category:    draft.Category,
			Description: draft.Description,
			Date:        draft.Date,
			Source:      "local",
		}
		if err := s.appendLocal(*created); err != nil {
			return nil, err
		}
	}

	s.cache.Flush()
	return created, nil
}

// Update replaces an existing transaction.
func (s *TransactionsService) Update(ctx context.Context, id string, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionsService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	updated, err := s.remote.UpdateTransaction(ctx, id, draft)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		s.metrics.IncrExternalError("transactions")
		s.metrics.IncrFallback("transactions")

		updated = &domain.Transaction{
			ID:          id,
			Type:        draft.Type,
			Amount:      draft.Amount,
			Category:    draft.Category,
			Description: draft.Description,
			Date:        draft.Date,
		}
		if err := s.replaceLocal(*updated); err != nil {
			return nil, err
		}
	}

	s.cache.Flush()
	return updated, nil
}

// Delete removes a transaction. A remote failure propagates: silently
// keeping the record while reporting success would desync the client.
func (s *TransactionsService) Delete(ctx context.Context, id string) error {
	ctx, span := txnTracer.Start(ctx, "TransactionsService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if err := s.remote.DeleteTransaction(ctx, id); err != nil {
		if isNotFound(err) {
			// Might be a locally-created record the remote never saw.
			removed, localErr := s.removeLocal(id)
			if localErr != nil {
				return localErr
			}
			if removed {
				s.cache.Flush()
				return nil
			}
		}
		s.metrics.IncrExternalError("transactions")
		return err
	}

	if _, err := s.removeLocal(id); err != nil {
		s.logger.Warn("failed to prune local mirror", zap.Error(err))
	}
	s.cache.Flush()
	return nil
}

// AcceptImported copies imported bank transactions into the ledger.
func (s *TransactionsService) AcceptImported(ctx context.Context, imported []domain.ImportedTransaction) (int, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionsService.AcceptImported")
	defer span.End()

	accepted := 0
	for _, t := range imported {
		draft := &domain.TransactionDraft{
			Type:        t.Type,
			Amount:      t.Amount,
			Category:    t.Category,
			Description: t.Description,
			Date:        t.Date,
		}
		if _, err := s.Create(ctx, draft); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

func (s *TransactionsService) appendLocal(t domain.Transaction) error {
	var txns []domain.Transaction
	if _, err := s.store.Get(localstore.KeyUserTransactions, &txns); err != nil {
		return err
	}
	txns = append(txns, t)
	sortByDateDesc(txns)
	return s.store.Put(localstore.KeyUserTransactions, txns)
}

func (s *TransactionsService) replaceLocal(t domain.Transaction) error {
	var txns []domain.Transaction
	if _, err := s.store.Get(localstore.KeyUserTransactions, &txns); err != nil {
		return err
	}
	found := false
	for i := range txns {
		if txns[i].ID == t.ID {
			txns[i] = t
			found = true
			break
		}
	}
	if !found {
		return &domain.ErrNotFound{Resource: "transaction", ID: t.ID}
	}
	sortByDateDesc(txns)
	return s.store.Put(localstore.KeyUserTransactions, txns)
}

func (s *TransactionsService) removeLocal(id string) (bool, error) {
	var txns []domain.Transaction
	if _, err := s.store.Get(localstore.KeyUserTransactions, &txns); err != nil {
		return false, err
	}
	kept := txns[:0:0]
	removed := false
	for _, t := range txns {
		if t.ID == id {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if removed {
		if err := s.store.Put(localstore.KeyUserTransactions, kept); err != nil {
			return false, err
		}
	}
	return removed, nil
}

func validateDraft(draft *domain.TransactionDraft) error {
	if draft.Type != domain.TransactionIncome && draft.Type != domain.TransactionExpense {
		return &domain.ErrValidation{Field: "transaction_type", Message: "must be income or expense"}
	}
	if draft.Amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}
	if _, err := time.Parse("2006-01-02", draft.Date); err != nil {
		return &domain.ErrValidation{Field: "date", Message: "must be a YYYY-MM-DD date"}
	}
	return nil
}

func sortByDateDesc(txns []domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date > txns[j].Date
	})
}

func isNotFound(err error) bool {
	var notFound *domain.ErrNotFound
	return errors.As(err, &notFound)
}
