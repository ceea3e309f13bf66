// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package services

import (
	"context"
	"time"

	"github.com/geosentry/geosentry/internal/logging"
)

// TickerService runs a task on a fixed interval as a supervised
// service. GeoSentry uses it for the idle-session sweeper, geofence
// auto-adjustment, and badger value-log GC.
//
// The task receives the serve context so it can abandon work on
// shutdown. A task error is logged, not returned: a failed pass should
// wait for the next tick rather than trip the supervisor's restart
// backoff.
type TickerService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTickerService creates a ticker service. The interval must be
// positive; the task runs first after one full interval, not at start.
func NewTickerService(name string, interval time.Duration, task func(ctx context.Context) error) *TickerService {
	return &TickerService{
		name:     name,
		interval: interval,
		task:     task,
	}
}

// Serve implements suture.Service.
func (t *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.task(ctx); err != nil {
				logging.Error().
					Err(err).
					Str("service", t.name).
					Msg("periodic task failed")
			}
		}
	}
}

// String implements fmt.Stringer.
func (t *TickerService) String() string {
	return t.name
}
