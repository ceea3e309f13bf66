// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// WebhookNotifier posts alert payloads to an external HTTP endpoint.
// Deliveries are rate limited and guarded by a circuit breaker so a
// dead endpoint cannot back up the dispatcher.
type WebhookNotifier struct {
	cfg     config.WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewWebhookNotifier creates a notifier for the configured endpoint.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	settings := gobreaker.Settings{
		Name:    "webhook",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}

	return &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Name implements Sink.
func (w *WebhookNotifier) Name() string { return "webhook" }

// Deliver posts the alert payload as JSON. Waits for a rate token
// first so a burst of alerts does not hammer the endpoint.
func (w *WebhookNotifier) Deliver(ctx context.Context, alert *models.Alert) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := w.breaker.Execute(func() (any, error) {
		return nil, w.post(ctx, alert)
	})
	return err
}

func (w *WebhookNotifier) post(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(alert.Payload())
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
