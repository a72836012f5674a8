// Package domain defines the core business entities for the finance tracker.
// These models are independent of external services and represent the
// canonical data structures used throughout the backend.
package domain

import "time"

// ============================================================
// Transactions
// ============================================================

// Transaction types.
const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// DefaultCategory is assigned to transactions without a category.
const DefaultCategory = "Other"

// Transaction represents a single income or expense record.
// Date is a calendar date in YYYY-MM-DD form; amounts are always
// non-negative, the type carries the sign.
type Transaction struct {
	ID          string  `json:"id"`
	Type        string  `json:"transaction_type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date"`
	ExternalID  string  `json:"external_id,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// TransactionDraft is the payload to create or update a transaction.
type TransactionDraft struct {
	Type        string  `json:"transaction_type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date"`
}

// ============================================================
// Budgets
// ============================================================

// Budget periods.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// MaxBudgetAmount is the client-side upper bound on a budget limit.
const MaxBudgetAmount = 1_000_000

// Budget is a per-category spending limit. Category is unique per user
// for the active period.
type Budget struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Period   string  `json:"period"`
}

// Budget status tiers, derived from percentage-of-limit spent.
const (
	StatusGood    = "good"
	StatusCaution = "caution"
	StatusWarning = "warning"
	StatusOver    = "over"
)

// BudgetStatus extends a Budget with spending figures for one evaluation
// window. It is derived, never persisted: recomputed on every call.
type BudgetStatus struct {
	Budget

	Spent float64 `json:"spent"`
	// Remaining is clamped at zero for display; the over-limit amount
	// is carried separately in OverAmount.
	Remaining  float64 `json:"remaining"`
	OverAmount float64 `json:"over_amount"`
	// Percentage is clamped to 100 for display. Status is assigned from
	// the unclamped value.
	Percentage    float64 `json:"percentage"`
	Status        string  `json:"status"`
	DaysRemaining int     `json:"days_remaining"`
}

// BudgetDraft is the payload to create or update a budget. Amount is a
// string because the form layer submits free text; ValidateBudget owns
// the numeric checks.
type BudgetDraft struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Period   string `json:"period,omitempty"`
}

// ValidationResult is a field-keyed validation outcome, surfaced directly
// to the caller for inline form display.
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  map[string]string `json:"errors"`
}

// ============================================================
// Open banking
// ============================================================

// BankDescriptor is a static catalog entry for a connectable bank.
type BankDescriptor struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Color       string `json:"color" toml:"color"`
	LogoURL     string `json:"logo_url" toml:"logo_url"`
	Supported   bool   `json:"supported" toml:"supported"`
	Description string `json:"description" toml:"description"`
}

// Connected account types.
const (
	AccountChecking = "checking"
	AccountSavings  = "savings"
	AccountCredit   = "credit"
)

// ConnectedAccount is a bank account linked through the open-banking
// flow. Balance is signed (credit accounts carry negative balances) and
// AccountNumber is stored masked.
type ConnectedAccount struct {
	ID            string    `json:"id"`
	BankID        string    `json:"bank_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Balance       float64   `json:"balance"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSynced    time.Time `json:"last_synced"`
}

// ImportedTransaction is a transaction fetched from a connected account.
// It lives in the import staging area until accepted into the main
// transaction store or until its bank is disconnected.
type ImportedTransaction struct {
	Transaction

	AccountID    string `json:"account_id"`
	BankID       string `json:"bank_id"`
	MerchantName string `json:"merchant_name,omitempty"`
	Status       string `json:"status"`
	Imported     bool   `json:"imported"`
}

// ConnectResult is returned by the connect operation.
type ConnectResult struct {
	Success           bool   `json:"success"`
	BankID            string `json:"bank_id"`
	BankName          string `json:"bank_name"`
	AccountsConnected int    `json:"accounts_connected"`
	Message           string `json:"message"`
}

// SyncResult is returned by the sync operation.
type SyncResult struct {
	Success              bool                  `json:"success"`
	TransactionsImported int                   `json:"transactions_imported"`
	AccountsSynced       int                   `json:"accounts_synced"`
	Transactions         []ImportedTransaction `json:"transactions"`
}

// DisconnectResult is returned by the disconnect operation.
type DisconnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Connection health tiers, derived from time since the last sync.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthWarning   = "warning"
	HealthError     = "error"
)

// ConnectionHealth summarizes sync freshness for one connected bank.
type ConnectionHealth struct {
	BankID     string    `json:"bank_id"`
	BankName   string    `json:"bank_name"`
	Status     string    `json:"status"`
	LastSynced time.Time `json:"last_synced"`
	Accounts   int       `json:"accounts"`
}

// ============================================================
// Users & settings
// ============================================================

// User is a registered account holder, as exposed over the API.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	TOTPEnabled bool       `json:"totp_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// StoredUser is the persisted shape of a User, secrets included. It only
// ever travels between the auth service and the local store.
type StoredUser struct {
	User

	PasswordHash string `json:"password_hash"`
	TOTPSecret   string `json:"totp_secret,omitempty"`
}

// Settings holds per-user display preferences.
type Settings struct {
	Currency string `json:"currency"`
	Theme    string `json:"theme"`
}

// DefaultSettings returns the settings applied before the user customizes
// anything.
func DefaultSettings() Settings {
	return Settings{Currency: "EUR", Theme: "light"}
}

// ============================================================
// Auth API request/response types
// ============================================================

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /v1/auth/login. TOTPCode is only
// required when the user has two-factor enabled.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login. When
// TwoFactorRequired is set the tokens are empty and the client must
// retry with a TOTP code.
type LoginResponse struct {
	AccessToken       string `json:"access_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	ExpiresIn         int    `json:"expires_in,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	Username          string `json:"username,omitempty"`
}

// RefreshRequest is the body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TwoFactorSetupResponse carries the provisioning data for an
// authenticator app.
type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauth_url"`
}

// TwoFactorStatusResponse is returned by GET /v1/auth/2fa/status.
type TwoFactorStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// ============================================================
// Dashboard analytics
// ============================================================

// CategoryTotal is spending per category over the summary window.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// DashboardSummary aggregates one calendar month of activity.
type DashboardSummary struct {
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	TotalIncome   float64         `json:"total_income"`
	TotalExpenses float64         `json:"total_expenses"`
	Net           float64         `json:"net"`
	Count         int             `json:"transaction_count"`
	Categories    []CategoryTotal `json:"categories"`
	Budgets       []BudgetStatus  `json:"budgets"`
	Recent        []Transaction   `json:"recent_transactions"`
}

// ============================================================
// Health API
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latency_ms"`
	LastChecked string `json:"last_checked"`
}

// MetricsSnapshot summarizes operational counters for the metrics
// summary endpoint. Rates are fractions in [0, 1].
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	ErrorRate     float64 `json:"error_rate"`
	FallbackRate  float64 `json:"fallback_rate"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	Period        string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
