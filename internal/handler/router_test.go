package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/handler"
	"github.com/fintrack/fintrack-go/internal/infra/cache"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/openbanking"
	"github.com/fintrack/fintrack-go/internal/port"
	"github.com/fintrack/fintrack-go/internal/service"

	"go.uber.org/zap"
)

// memStore is an in-memory KeyValue used instead of SQLite in tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memStore) Put(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// downRemote fails every call, forcing the services onto their local
// fallbacks for the whole test server.
type downRemote struct{}

var errDown = &domain.ErrExternalService{Service: "remote", Err: context.DeadlineExceeded}

func (downRemote) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return nil, errDown
}
func (downRemote) CreateTransaction(ctx context.Context, d *domain.TransactionDraft) (*domain.Transaction, error) {
	return nil, errDown
}
func (downRemote) UpdateTransaction(ctx context.Context, id string, d *domain.TransactionDraft) (*domain.Transaction, error) {
	return nil, errDown
}
// Deletes answer not-found: the remote never saw locally-created records,
// so the service prunes its local mirror instead.
func (downRemote) DeleteTransaction(ctx context.Context, id string) error {
	return &domain.ErrNotFound{Resource: "transaction", ID: id}
}

func (downRemote) ListBudgetStatuses(ctx context.Context, month, year int) ([]domain.BudgetStatus, error) {
	return nil, errDown
}
func (downRemote) CreateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	return nil, errDown
}
func (downRemote) UpdateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	return nil, errDown
}
func (downRemote) DeleteBudget(ctx context.Context, id string) error { return errDown }

func (downRemote) Banks(ctx context.Context) ([]domain.BankDescriptor, error) { return nil, errDown }
func (downRemote) Connect(ctx context.Context, bankID string) (*domain.ConnectResult, error) {
	return nil, errDown
}
func (downRemote) Accounts(ctx context.Context) ([]domain.ConnectedAccount, error) {
	return nil, errDown
}
func (downRemote) Sync(ctx context.Context, accountID string) (*domain.SyncResult, error) {
	return nil, errDown
}
func (downRemote) ImportedTransactions(ctx context.Context, accountID string) ([]domain.ImportedTransaction, error) {
	return nil, errDown
}
func (downRemote) RemoveImported(ctx context.Context, ids []string) (int, error) {
	return 0, errDown
}
func (downRemote) Disconnect(ctx context.Context, bankID string) (*domain.DisconnectResult, error) {
	return nil, errDown
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := newMemStore()
	clock := port.SystemClock()

	catalog, err := openbanking.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	sim, err := openbanking.NewSimulator(catalog, store, logger, openbanking.Options{
		ConnectDelay: time.Millisecond,
		SyncDelay:    time.Millisecond,
		Rand:         rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}

	authSvc := service.NewAuthService(store, clock, "test-secret", 15*time.Minute, time.Hour, logger)
	txnSvc := service.NewTransactionsService(downRemote{}, store, cache.New[[]domain.Transaction](time.Minute), metrics, logger)
	budgetSvc := service.NewBudgetsService(downRemote{}, store, txnSvc, clock, metrics, logger)
	bankSvc := service.NewBankingService(downRemote{}, sim, clock, metrics, logger)
	dashSvc := service.NewDashboardService(txnSvc, budgetSvc, clock, logger)
	settingsSvc := service.NewSettingsService(store, logger)

	return handler.NewRouter(handler.Services{
		Auth:         authSvc,
		Transactions: txnSvc,
		Budgets:      budgetSvc,
		Banking:      bankSvc,
		Dashboard:    dashSvc,
		Settings:     settingsSvc,
	}, metrics, "http://localhost:5173", logger)
}

// registerAndLogin creates a user through the API and returns an access token.
func registerAndLogin(t *testing.T, router http.Handler) string {
	t.Helper()

	body := `{"username":"alice","email":"alice@example.com","password":"correct horse"}`
	rec := doRequest(router, http.MethodPost, "/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodPost, "/v1/auth/login", `{"username":"alice","password":"correct horse"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	return resp.AccessToken
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/v1/transactions", "/v1/budgets/status", "/v1/banking/banks", "/v1/dashboard/summary", "/v1/settings"} {
		rec := doRequest(router, http.MethodGet, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodPost, "/v1/transactions",
		`{"transaction_type":"expense","amount":12.5,"category":"Food","description":"lunch","date":"2024-06-10"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Source != "local" {
		t.Errorf("expected local source with remote down, got %q", created.Source)
	}

	rec = doRequest(router, http.MethodGet, "/v1/transactions", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed []domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("expected the created transaction back, got %+v", listed)
	}

	rec = doRequest(router, http.MethodDelete, "/v1/transactions/"+created.ID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransactionValidationOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodPost, "/v1/transactions",
		`{"transaction_type":"expense","amount":-5,"date":"2024-06-10"}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative amount, got %d", rec.Code)
	}
}

func TestBankingFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodGet, "/v1/banking/banks", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("banks: expected 200, got %d", rec.Code)
	}
	var banks []domain.BankDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &banks); err != nil {
		t.Fatalf("decode banks: %v", err)
	}
	if len(banks) != 8 {
		t.Fatalf("expected 8 banks, got %d", len(banks))
	}

	rec = doRequest(router, http.MethodPost, "/v1/banking/banks/sparkasse/connect", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var connect domain.ConnectResult
	if err := json.Unmarshal(rec.Body.Bytes(), &connect); err != nil {
		t.Fatalf("decode connect: %v", err)
	}
	if !connect.Success || connect.AccountsConnected == 0 {
		t.Fatalf("unexpected connect result: %+v", connect)
	}

	rec = doRequest(router, http.MethodPost, "/v1/banking/sync", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sync domain.SyncResult
	if err := json.Unmarshal(rec.Body.Bytes(), &sync); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if sync.TransactionsImported == 0 {
		t.Fatal("expected imported transactions after sync")
	}

	rec = doRequest(router, http.MethodPost, "/v1/banking/banks/postbank/connect", "", token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unsupported bank, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodDelete, "/v1/banking/banks/sparkasse", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("disconnect: expected 200, got %d", rec.Code)
	}
	rec = doRequest(router, http.MethodDelete, "/v1/banking/banks/sparkasse", "", token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 disconnecting twice, got %d", rec.Code)
	}
}

func TestAcceptImportedClearsStagingArea(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodPost, "/v1/banking/banks/n26/connect", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rec.Code)
	}
	rec = doRequest(router, http.MethodPost, "/v1/banking/sync", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/v1/banking/transactions", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("staged: expected 200, got %d", rec.Code)
	}
	var staged []domain.ImportedTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &staged); err != nil {
		t.Fatalf("decode staged: %v", err)
	}
	if len(staged) == 0 {
		t.Fatal("expected staged transactions after sync")
	}

	payload, err := json.Marshal(map[string]any{"transactions": staged[:1]})
	if err != nil {
		t.Fatalf("marshal accept payload: %v", err)
	}
	rec = doRequest(router, http.MethodPost, "/v1/transactions/accept-imported", string(payload), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode accept response: %v", err)
	}
	if accepted.Accepted != 1 {
		t.Fatalf("expected 1 accepted, got %d", accepted.Accepted)
	}

	rec = doRequest(router, http.MethodGet, "/v1/banking/transactions", "", token)
	var remaining []domain.ImportedTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &remaining); err != nil {
		t.Fatalf("decode remaining: %v", err)
	}
	if len(remaining) != len(staged)-1 {
		t.Errorf("expected %d staged after accept, got %d", len(staged)-1, len(remaining))
	}
	for _, tx := range remaining {
		if tx.ID == staged[0].ID {
			t.Errorf("accepted transaction %s still present in staging area", tx.ID)
		}
	}

	rec = doRequest(router, http.MethodGet, "/v1/transactions", "", token)
	var ledger []domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &ledger); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if len(ledger) != 1 {
		t.Errorf("expected 1 ledger transaction, got %d", len(ledger))
	}
}

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

func TestBudgetValidateEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodPost, "/v1/budgets/validate",
		`{"category":"Food","amount":"abc"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.IsValid {
		t.Error("expected invalid result for non-numeric amount")
	}
	if _, ok := result.Errors["amount"]; !ok {
		t.Errorf("expected an amount error, got %v", result.Errors)
	}
}

func TestSettingsRoundTripOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doRequest(router, http.MethodPut, "/v1/settings", `{"currency":"usd","theme":"dark"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/v1/settings", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var settings domain.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if settings.Currency != "USD" || settings.Theme != "dark" {
		t.Errorf("unexpected settings: %+v", settings)
	}
}

func TestDashboardSummaryOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	now := time.Now()
	body := fmt.Sprintf(`{"transaction_type":"income","amount":1000,"category":"Salary","description":"pay","date":%q}`, now.Format("2006-01-02"))
	rec := doRequest(router, http.MethodPost, "/v1/transactions", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/v1/dashboard/summary", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary domain.DashboardSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalIncome != 1000 {
		t.Errorf("expected income 1000, got %v", summary.TotalIncome)
	}
	if summary.Month != int(now.Month()) || summary.Year != now.Year() {
		t.Errorf("expected current period, got %d/%d", summary.Month, summary.Year)
	}
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	// Listings with the remote down record both a request and a fallback.
	doRequest(router, http.MethodGet, "/v1/transactions", "", token)
	doRequest(router, http.MethodGet, "/v1/transactions", "", token)

	rec := doRequest(router, http.MethodGet, "/v1/metrics/summary", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap domain.MetricsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Period != "all_time" {
		t.Errorf("unexpected period %q", snap.Period)
	}
	// register + login + two listings have been served at this point.
	if snap.TotalRequests < 4 {
		t.Errorf("expected at least 4 counted requests, got %d", snap.TotalRequests)
	}
	if snap.FallbackRate <= 0 {
		t.Errorf("expected a positive fallback rate with the remote down, got %v", snap.FallbackRate)
	}
	if snap.ErrorRate != 0 {
		t.Errorf("expected zero error rate, got %v", snap.ErrorRate)
	}
}
