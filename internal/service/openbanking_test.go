package service_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/openbanking"
	"github.com/fintrack/fintrack-go/internal/service"
)

func newSimulator(t *testing.T, now time.Time) *openbanking.Simulator {
	t.Helper()
	cat, err := openbanking.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	sim, err := openbanking.NewSimulator(cat, newMemStore(), zap.NewNop(), openbanking.Options{
		ConnectDelay: time.Millisecond,
		SyncDelay:    time.Millisecond,
		Clock:        fixedClock(now),
		Rand:         rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return sim
}

func TestBankingFallsBackToSimulator(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	sim := newSimulator(t, now)
	svc := service.NewBankingService(&mockBankingAPI{}, sim,
		fixedClock(now), observability.NewMetrics(), zap.NewNop())
	ctx := context.Background()

	banks, err := svc.Banks(ctx)
	if err != nil {
		t.Fatalf("Banks: %v", err)
	}
	if len(banks) != 8 {
		t.Errorf("expected simulator catalog, got %d banks", len(banks))
	}

	res, err := svc.Connect(ctx, "n26")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !res.Success {
		t.Errorf("connect result: %+v", res)
	}

	sync, err := svc.Sync(ctx, "")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sync.TransactionsImported == 0 {
		t.Error("expected transactions from the simulator")
	}
}

func TestBankingPrefersRemote(t *testing.T) {
	now := time.Now()
	remote := &mockBankingAPI{
		banksFn: func(ctx context.Context) ([]domain.BankDescriptor, error) {
			return []domain.BankDescriptor{{ID: "remote_bank", Name: "Remote Bank", Supported: true}}, nil
		},
	}
	svc := service.NewBankingService(remote, newSimulator(t, now),
		fixedClock(now), observability.NewMetrics(), zap.NewNop())

	banks, err := svc.Banks(context.Background())
	if err != nil {
		t.Fatalf("Banks: %v", err)
	}
	if len(banks) != 1 || banks[0].ID != "remote_bank" {
		t.Errorf("expected remote catalog, got %+v", banks)
	}
}

func TestBankingDomainErrorsDoNotFallBack(t *testing.T) {
	now := time.Now()
	remote := &mockBankingAPI{
		connectFn: func(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
			return nil, &domain.ErrUnsupportedBank{BankID: bankID}
		},
	}
	svc := service.NewBankingService(remote, newSimulator(t, now),
		fixedClock(now), observability.NewMetrics(), zap.NewNop())

	_, err := svc.Connect(context.Background(), "dkb")
	var unsupported *domain.ErrUnsupportedBank
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected remote's ErrUnsupportedBank to propagate, got %v", err)
	}
}

func TestBankingHealth(t *testing.T) {
	connectedAt := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	now := connectedAt.Add(2 * 24 * time.Hour)

	sim := newSimulator(t, connectedAt)
	if _, err := sim.Connect(context.Background(), "sparkasse"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	svc := service.NewBankingService(&mockBankingAPI{}, sim,
		fixedClock(now), observability.NewMetrics(), zap.NewNop())

	health, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if len(health) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(health))
	}
	if health[0].BankName != "Sparkasse" {
		t.Errorf("bank name = %q", health[0].BankName)
	}
	if health[0].Status != domain.HealthGood {
		t.Errorf("status = %s, want %s (2 days since sync)", health[0].Status, domain.HealthGood)
	}
}
