// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package services

import (
	"context"
	"fmt"
	"time"
)

// EmbeddedBroker matches *stream.EmbeddedServer's shutdown method. The
// embedded NATS server starts at construction, so the wrapper only has
// to hold it open and shut it down.
type EmbeddedBroker interface {
	Shutdown(ctx context.Context) error
}

// NATSServerService keeps the embedded NATS server under supervision.
type NATSServerService struct {
	broker          EmbeddedBroker
	shutdownTimeout time.Duration
	name            string
}

// NewNATSServerService creates a new embedded NATS service wrapper.
func NewNATSServerService(broker EmbeddedBroker, shutdownTimeout time.Duration) *NATSServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSServerService{
		broker:          broker,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-server",
	}
}

// Serve implements suture.Service. Blocks until the context is
// canceled, then shuts the broker down under its own deadline.
func (s *NATSServerService) Serve(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.broker.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("nats server shutdown failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *NATSServerService) String() string {
	return s.name
}
