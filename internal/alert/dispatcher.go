// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package alert

import (
	"context"
	"time"

	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// Sink delivers an alert to one destination: the store, the websocket
// hub, the NATS stream, or an external webhook.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert *models.Alert) error
}

// Dispatcher drains the emitter queue and fans each alert out to every
// sink. A sink failure is logged and counted but never stops delivery
// to the remaining sinks.
type Dispatcher struct {
	queue <-chan *models.Alert
	sinks []Sink
}

// NewDispatcher creates a Dispatcher over the emitter's queue.
func NewDispatcher(emitter *Emitter, sinks ...Sink) *Dispatcher {
	return &Dispatcher{queue: emitter.Queue(), sinks: sinks}
}

// Run drains the queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert := <-d.queue:
			metrics.AlertQueueDepth.Set(float64(len(d.queue)))
			d.dispatch(ctx, alert)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *models.Alert) {
	for _, sink := range d.sinks {
		start := time.Now()
		err := sink.Deliver(ctx, alert)
		metrics.RecordDispatch(sink.Name(), time.Since(start), err)
		if err != nil {
			logging.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("alert_id", alert.ID).
				Str("session_id", alert.SessionID).
				Msg("alert delivery failed")
		}
	}
}
