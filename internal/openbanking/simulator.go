package openbanking

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/port"
)

// Store keys for persisted connection state. Each key holds one JSON
// document and is rewritten in full on every mutation.
const (
	keyConnectedBanks       = "connectedBanks"
	keyConnectedAccounts    = "connectedAccounts"
	keyImportedTransactions = "importedTransactions"
)

// Transactions generated per account on sync.
const (
	minSyncBatch = 5
	maxSyncBatch = 15
)

// Options tune the simulator. Zero values fall back to production
// defaults; tests shrink the delays and pin the clock and rand seed.
type Options struct {
	ConnectDelay time.Duration
	SyncDelay    time.Duration
	Clock        port.Clock
	Rand         *rand.Rand
}

// Simulator implements port.OpenBankingAPI against the embedded bank
// catalog. Connection state persists through the key-value store so
// connected banks survive restarts, mirroring a real aggregator's
// server-side state.
type Simulator struct {
	catalog *Catalog
	store   port.KeyValue
	clock   port.Clock
	gen     *Generator
	logger  *zap.Logger

	connectDelay time.Duration
	syncDelay    time.Duration

	mu       sync.Mutex
	banks    []string
	accounts []domain.ConnectedAccount
	imported []domain.ImportedTransaction
	inFlight map[string]struct{}
}

// NewSimulator loads persisted connection state and returns a ready
// simulator. A store read failure is fatal: starting with silently
// empty state would orphan previously imported transactions.
func NewSimulator(catalog *Catalog, store port.KeyValue, logger *zap.Logger, opts Options) (*Simulator, error) {
	if opts.ConnectDelay == 0 {
		opts.ConnectDelay = 2 * time.Second
	}
	if opts.SyncDelay == 0 {
		opts.SyncDelay = 1500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = port.SystemClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Simulator{
		catalog:      catalog,
		store:        store,
		clock:        opts.Clock,
		gen:          NewGenerator(catalog.Merchants, opts.Rand),
		logger:       logger,
		connectDelay: opts.ConnectDelay,
		syncDelay:    opts.SyncDelay,
		inFlight:     make(map[string]struct{}),
	}

	if _, err := store.Get(keyConnectedBanks, &s.banks); err != nil {
		return nil, fmt.Errorf("load connected banks: %w", err)
	}
	if _, err := store.Get(keyConnectedAccounts, &s.accounts); err != nil {
		return nil, fmt.Errorf("load connected accounts: %w", err)
	}
	if _, err := store.Get(keyImportedTransactions, &s.imported); err != nil {
		return nil, fmt.Errorf("load imported transactions: %w", err)
	}

	logger.Info("open banking simulator ready",
		zap.Int("connected_banks", len(s.banks)),
		zap.Int("connected_accounts", len(s.accounts)),
		zap.Int("imported_transactions", len(s.imported)))
	return s, nil
}

// Banks returns the full catalog, supported and unsupported alike; the
// client renders unsupported entries as "coming soon".
func (s *Simulator) Banks(ctx context.Context) ([]domain.BankDescriptor, error) {
	out := make([]domain.BankDescriptor, len(s.catalog.Banks))
	copy(out, s.catalog.Banks)
	return out, nil
}

// Connect links a bank and materializes its sample accounts. Connecting
// an already-connected bank replaces its accounts rather than
// duplicating them. The artificial delay models the aggregator's OAuth
// round trip.
func (s *Simulator) Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
	bank := s.catalog.Bank(bankID)
	if bank == nil {
		return nil, &domain.ErrNotFound{Resource: "bank", ID: bankID}
	}
	if !bank.Supported {
		return nil, &domain.ErrUnsupportedBank{BankID: bankID}
	}

	if err := s.sleep(ctx, s.connectDelay); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	samples := s.catalog.AccountsFor(bankID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop any prior accounts for this bank, then re-add from the
	// catalog templates.
	kept := s.accounts[:0:0]
	for _, a := range s.accounts {
		if a.BankID != bankID {
			kept = append(kept, a)
		}
	}
	for _, sa := range samples {
		kept = append(kept, domain.ConnectedAccount{
			ID:            sa.ID,
			BankID:        sa.BankID,
			Name:          sa.Name,
			Type:          sa.Type,
			Balance:       sa.Balance,
			AccountNumber: sa.AccountNumber,
			Currency:      sa.Currency,
			ConnectedAt:   now,
			LastSynced:    now,
		})
	}
	s.accounts = kept

	if !contains(s.banks, bankID) {
		s.banks = append(s.banks, bankID)
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.logger.Info("bank connected",
		zap.String("bank_id", bankID),
		zap.Int("accounts", len(samples)))

	return &domain.ConnectResult{
		Success:           true,
		BankID:            bankID,
		BankName:          bank.Name,
		AccountsConnected: len(samples),
		Message:           fmt.Sprintf("Successfully connected to %s", bank.Name),
	}, nil
}

// Accounts returns all connected accounts across banks.
func (s *Simulator) Accounts(ctx context.Context) ([]domain.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConnectedAccount, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

// Sync fetches fresh transactions for one account, or for every
// connected account when accountID is empty. Only one sync per account
// may run at a time; overlapping calls fail fast with ErrSyncInFlight.
func (s *Simulator) Sync(ctx context.Context, accountID string) (*domain.SyncResult, error) {
	s.mu.Lock()
	var targets []domain.ConnectedAccount
	if accountID == "" {
		targets = append(targets, s.accounts...)
	} else {
		for _, a := range s.accounts {
			if a.ID == accountID {
				targets = append(targets, a)
				break
			}
		}
		if len(targets) == 0 {
			s.mu.Unlock()
			return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
		}
	}

	for _, a := range targets {
		if _, busy := s.inFlight[a.ID]; busy {
			s.mu.Unlock()
			return nil, &domain.ErrSyncInFlight{AccountID: a.ID}
		}
	}
	for _, a := range targets {
		s.inFlight[a.ID] = struct{}{}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for _, a := range targets {
			delete(s.inFlight, a.ID)
		}
		s.mu.Unlock()
	}()

	if err := s.sleep(ctx, s.syncDelay); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []domain.ImportedTransaction
	for _, a := range targets {
		count := minSyncBatch + s.gen.rng.Intn(maxSyncBatch-minSyncBatch+1)
		fresh = append(fresh, s.gen.Generate(a.ID, a.BankID, count, now)...)
		for i := range s.accounts {
			if s.accounts[i].ID == a.ID {
				s.accounts[i].LastSynced = now
			}
		}
	}
	s.imported = append(s.imported, fresh...)

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.logger.Info("accounts synced",
		zap.Int("accounts", len(targets)),
		zap.Int("transactions", len(fresh)))

	return &domain.SyncResult{
		Success:              true,
		TransactionsImported: len(fresh),
		AccountsSynced:       len(targets),
		Transactions:         fresh,
	}, nil
}

// ImportedTransactions returns the staged imports, optionally filtered
// to one account, newest first.
func (s *Simulator) ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ImportedTransaction
	for _, t := range s.imported {
		if accountID == "" || t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

// RemoveImported drops staged transactions by ID, so records accepted
// into the main ledger are not offered for import twice. Unknown IDs
// are ignored; the count of actually removed records is returned.
func (s *Simulator) RemoveImported(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.imported[:0:0]
	removed := 0
	for _, t := range s.imported {
		if _, ok := drop[t.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed == 0 {
		return 0, nil
	}
	s.imported = kept

	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Disconnect unlinks a bank and purges its accounts and any staged
// transactions that came from them.
func (s *Simulator) Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error) {
	bank := s.catalog.Bank(bankID)
	if bank == nil {
		return nil, &domain.ErrNotFound{Resource: "bank", ID: bankID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !contains(s.banks, bankID) {
		return nil, &domain.ErrNotFound{Resource: "bank connection", ID: bankID}
	}

	banks := s.banks[:0:0]
	for _, b := range s.banks {
		if b != bankID {
			banks = append(banks, b)
		}
	}
	s.banks = banks

	accounts := s.accounts[:0:0]
	for _, a := range s.accounts {
		if a.BankID != bankID {
			accounts = append(accounts, a)
		}
	}
	s.accounts = accounts

	imported := s.imported[:0:0]
	for _, t := range s.imported {
		if t.BankID != bankID {
			imported = append(imported, t)
		}
	}
	s.imported = imported

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.logger.Info("bank disconnected", zap.String("bank_id", bankID))

	return &domain.DisconnectResult{
		Success: true,
		Message: fmt.Sprintf("Disconnected from %s", bank.Name),
	}, nil
}

// Health reports per-bank sync freshness.
func (s *Simulator) Health(ctx context.Context) ([]domain.ConnectionHealth, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ConnectionHealth
	for _, bankID := range s.banks {
		bank := s.catalog.Bank(bankID)
		if bank == nil {
			continue
		}

		var last time.Time
		var count int
		for _, a := range s.accounts {
			if a.BankID != bankID {
				continue
			}
			count++
			if a.LastSynced.After(last) {
				last = a.LastSynced
			}
		}

		out = append(out, domain.ConnectionHealth{
			BankID:     bankID,
			BankName:   bank.Name,
			Status:     HealthTier(now.Sub(last)),
			LastSynced: last,
			Accounts:   count,
		})
	}
	return out, nil
}

// HealthTier maps time since the last successful sync to a health
// label: excellent under one day, good under three, warning under
// seven, error beyond.
func HealthTier(sinceSync time.Duration) string {
	switch {
	case sinceSync < 24*time.Hour:
		return domain.HealthExcellent
	case sinceSync < 3*24*time.Hour:
		return domain.HealthGood
	case sinceSync < 7*24*time.Hour:
		return domain.HealthWarning
	default:
		return domain.HealthError
	}
}

// persistLocked rewrites all three state documents. Callers hold s.mu.
func (s *Simulator) persistLocked() error {
	if err := s.store.Put(keyConnectedBanks, s.banks); err != nil {
		return fmt.Errorf("persist connected banks: %w", err)
	}
	if err := s.store.Put(keyConnectedAccounts, s.accounts); err != nil {
		return fmt.Errorf("persist connected accounts: %w", err)
	}
	if err := s.store.Put(keyImportedTransactions, s.imported); err != nil {
		return fmt.Errorf("persist imported transactions: %w", err)
	}
	return nil
}

// sleep waits for d or until the context is done.
func (s *Simulator) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
