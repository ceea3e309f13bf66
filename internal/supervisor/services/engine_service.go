// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package services

import (
	"context"
)

// RiskEngine matches *engine.Engine's Serve method without importing
// the engine package.
type RiskEngine interface {
	Serve(ctx context.Context) error
}

// EngineService wraps the risk engine as a supervised service. The
// engine's Serve blocks until the context is canceled, then drains the
// per-session workers.
type EngineService struct {
	engine RiskEngine
	name   string
}

// NewEngineService creates a new risk engine service wrapper.
func NewEngineService(engine RiskEngine) *EngineService {
	return &EngineService{
		engine: engine,
		name:   "risk-engine",
	}
}

// Serve implements suture.Service.
func (e *EngineService) Serve(ctx context.Context) error {
	return e.engine.Serve(ctx)
}

// String implements fmt.Stringer.
func (e *EngineService) String() string {
	return e.name
}
