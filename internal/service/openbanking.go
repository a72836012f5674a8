package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/openbanking"
	"github.com/fintrack/fintrack-go/internal/port"
)

var bankTracer = otel.Tracer("service/banking")

// BankingService fronts two port.OpenBankingAPI implementations: the
// remote aggregator and the local simulator. Every call tries the
// remote first and falls back transparently, so callers never learn
// which one answered.
type BankingService struct {
	remote  port.OpenBankingAPI
	sim     port.OpenBankingAPI
	clock   port.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBankingService creates a new banking service.
func NewBankingService(
	remote port.OpenBankingAPI,
	sim port.OpenBankingAPI,
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BankingService {
	return &BankingService{
		remote:  remote,
		sim:     sim,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// fallthrough wrapper: runs the remote call, and on failure reruns the
// same call against the simulator. Domain errors the simulator can also
// produce (unknown bank, unsupported bank, sync in flight) propagate
// from whichever side raised them.

func (s *BankingService) Banks(ctx context.Context) ([]domain.BankDescriptor, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Banks")
	defer span.End()

	banks, err := s.remote.Banks(ctx)
	if err != nil {
		s.fellBack("banks", err)
		return s.sim.Banks(ctx)
	}
	return banks, nil
}

func (s *BankingService) Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Connect")
	defer span.End()
	span.SetAttributes(attribute.String("bank.id", bankID))

	res, err := s.remote.Connect(ctx, bankID)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.fellBack("connect", err)
		return s.sim.Connect(ctx, bankID)
	}
	return res, nil
}

func (s *BankingService) Accounts(ctx context.Context) ([]domain.ConnectedAccount, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Accounts")
	defer span.End()

	accounts, err := s.remote.Accounts(ctx)
	if err != nil {
		s.fellBack("accounts", err)
		return s.sim.Accounts(ctx)
	}
	return accounts, nil
}

func (s *BankingService) Sync(ctx context.Context, accountID string) (*domain.SyncResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	res, err := s.remote.Sync(ctx, accountID)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.fellBack("sync", err)
		res, err = s.sim.Sync(ctx, accountID)
		if err != nil {
			return nil, err
		}
	}

	byBank := map[string]int{}
	for _, t := range res.Transactions {
		byBank[t.BankID]++
	}
	for bank, n := range byBank {
		s.metrics.RecordSyncedTransactions(bank, n)
	}
	return res, nil
}

func (s *BankingService) ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.ImportedTransactions")
	defer span.End()

	imported, err := s.remote.ImportedTransactions(ctx, accountID)
	if err != nil {
		s.fellBack("imported", err)
		return s.sim.ImportedTransactions(ctx, accountID)
	}
	return imported, nil
}

// RemoveImported clears staged transactions after they were accepted
// into the main ledger, so a second accept cannot duplicate them.
func (s *BankingService) RemoveImported(ctx context.Context, ids []string) (int, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.RemoveImported")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions.count", len(ids)))

	removed, err := s.remote.RemoveImported(ctx, ids)
	if err != nil {
		s.fellBack("remove_imported", err)
		return s.sim.RemoveImported(ctx, ids)
	}
	return removed, nil
}

func (s *BankingService) Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Disconnect")
	defer span.End()
	span.SetAttributes(attribute.String("bank.id", bankID))

	res, err := s.remote.Disconnect(ctx, bankID)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.fellBack("disconnect", err)
		return s.sim.Disconnect(ctx, bankID)
	}
	return res, nil
}

// Health derives per-bank connection health from the account list, so
// it works identically against the remote and the simulator.
func (s *BankingService) Health(ctx context.Context) ([]domain.ConnectionHealth, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Health")
	defer span.End()

	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	banks, err := s.Banks(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(banks))
	for _, b := range banks {
		names[b.ID] = b.Name
	}

	now := s.clock.Now()
	byBank := map[string]*domain.ConnectionHealth{}
	var order []string
	for _, a := range accounts {
		h, ok := byBank[a.BankID]
		if !ok {
			h = &domain.ConnectionHealth{
				BankID:   a.BankID,
				BankName: names[a.BankID],
			}
			byBank[a.BankID] = h
			order = append(order, a.BankID)
		}
		h.Accounts++
		if a.LastSynced.After(h.LastSynced) {
			h.LastSynced = a.LastSynced
		}
	}

	out := make([]domain.ConnectionHealth, 0, len(order))
	for _, id := range order {
		h := byBank[id]
		h.Status = openbanking.HealthTier(now.Sub(h.LastSynced))
		out = append(out, *h)
	}
	return out, nil
}

func (s *BankingService) fellBack(op string, err error) {
	s.metrics.IncrExternalError("banking")
	s.metrics.IncrFallback("banking")
	s.logger.Warn("remote banking call failed, using simulator",
		zap.String("operation", op), zap.Error(err))
}

// isDomainError reports whether err is a typed business error that the
// simulator would reproduce anyway, making a fallback pointless.
func isDomainError(err error) bool {
	var notFound *domain.ErrNotFound
	var unsupported *domain.ErrUnsupportedBank
	var inFlight *domain.ErrSyncInFlight
	var conflict *domain.ErrConflict
	return errors.As(err, &notFound) || errors.As(err, &unsupported) ||
		errors.As(err, &inFlight) || errors.As(err, &conflict)
}
