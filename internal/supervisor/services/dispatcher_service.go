// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package services

import (
	"context"
)

// AlertDispatcher matches *alert.Dispatcher's Run method without
// importing the alert package.
type AlertDispatcher interface {
	Run(ctx context.Context) error
}

// DispatcherService wraps the alert dispatcher as a supervised service.
// The dispatcher drains the emitter queue and fans alerts out to the
// configured sinks until the context is canceled.
type DispatcherService struct {
	dispatcher AlertDispatcher
	name       string
}

// NewDispatcherService creates a new alert dispatcher service wrapper.
func NewDispatcherService(dispatcher AlertDispatcher) *DispatcherService {
	return &DispatcherService{
		dispatcher: dispatcher,
		name:       "alert-dispatcher",
	}
}

// Serve implements suture.Service.
func (d *DispatcherService) Serve(ctx context.Context) error {
	return d.dispatcher.Run(ctx)
}

// String implements fmt.Stringer.
func (d *DispatcherService) String() string {
	return d.name
}
