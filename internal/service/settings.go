package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/port"
)

var settingsTracer = otel.Tracer("service/settings")

var supportedCurrencies = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "CHF": true,
}

// SettingsService manages display preferences in the local store.
type SettingsService struct {
	store  port.KeyValue
	logger *zap.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(store port.KeyValue, logger *zap.Logger) *SettingsService {
	return &SettingsService{store: store, logger: logger}
}

// Get returns the stored settings, or the defaults when nothing has
// been saved yet.
func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	_, span := settingsTracer.Start(ctx, "SettingsService.Get")
	defer span.End()

	settings := domain.DefaultSettings()
	if _, err := s.store.Get(localstore.KeyUserSettings, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update validates and persists new settings.
func (s *SettingsService) Update(ctx context.Context, settings *domain.Settings) (*domain.Settings, error) {
	_, span := settingsTracer.Start(ctx, "SettingsService.Update")
	defer span.End()

	currency := strings.ToUpper(strings.TrimSpace(settings.Currency))
	if !supportedCurrencies[currency] {
		return nil, &domain.ErrValidation{Field: "currency", Message: "unsupported currency: " + settings.Currency}
	}
	if settings.Theme != "light" && settings.Theme != "dark" {
		return nil, &domain.ErrValidation{Field: "theme", Message: "theme must be light or dark"}
	}

	clean := domain.Settings{Currency: currency, Theme: settings.Theme}
	if err := s.store.Put(localstore.KeyUserSettings, clean); err != nil {
		return nil, err
	}

	s.logger.Info("settings updated",
		zap.String("currency", clean.Currency),
		zap.String("theme", clean.Theme))
	return &clean, nil
}
