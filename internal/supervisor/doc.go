// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package supervisor provides the suture-based supervision tree that
// keeps GeoSentry's long-running services alive.
//
// Services are grouped into three child supervisors (data, pipeline,
// api) under a single root, so a crash loop in one layer backs off
// without restarting the others. Service wrappers live in the services
// subpackage; each adapts a component's lifecycle to suture's
// Serve(ctx) pattern and names itself for the event log.
package supervisor
