// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package services adapts GeoSentry components to suture's
// Serve(ctx)/String() service pattern. Each wrapper takes the smallest
// interface its component needs, so the wrappers stay testable without
// real servers or brokers.
package services
