package handler

import (
	"net/http"

	"github.com/fintrack/fintrack-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Dashboard
// ============================================================

func dashboardSummaryHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard/summary")
		defer span.End()

		month, year := parseMonthYear(r)
		summary, err := svc.Summary(ctx, month, year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.Int("summary.month", summary.Month),
			attribute.Int("summary.year", summary.Year),
		)

		writeJSON(w, http.StatusOK, summary)
	}
}
