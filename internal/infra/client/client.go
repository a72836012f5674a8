// Package client implements HTTP clients for the remote finance API.
// Every call goes through the shared circuit breaker, retry policy and
// bulkhead; services treat any error from here as the cue to fall back
// to local state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// base carries the plumbing shared by the resource clients.
type base struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
}

func newBase(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) base {
	return base{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

// doJSON performs one API call with bulkhead, circuit breaker and retry.
// body (when non-nil) is JSON-encoded; the response is decoded into out
// (when non-nil). Typed domain errors pass through unwrapped so callers
// can branch on them; everything else surfaces as ErrExternalService.
func (b *base) doJSON(ctx context.Context, service, method, path string, body, out any) error {
	if err := b.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer b.bulkhead.Release()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	_, err := b.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, b.cfg, func() error {
			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
			if err != nil {
				return err
			}
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := b.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return &domain.ErrNotFound{Resource: service, ID: path}
			case resp.StatusCode == http.StatusConflict:
				return &domain.ErrConflict{Message: fmt.Sprintf("%s API reported a conflict", service)}
			case resp.StatusCode >= 400:
				return fmt.Errorf("%s API returned status %d", service, resp.StatusCode)
			}

			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		var conflict *domain.ErrConflict
		if errors.As(err, &notFound) || errors.As(err, &conflict) {
			return err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ErrCircuitOpen{Service: service}
		}
		return &domain.ErrExternalService{Service: service, Err: err}
	}
	return nil
}
