// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

/*
Package models defines the data structures shared across GeoSentry.

It is the single source of truth for the domain types flowing through
the pipeline and the API:

  - LocationPing: one session position report, the pipeline's input
  - Geofence, Vertex: circular and polygonal risk zones
  - FraudHotspot: a known incident site with decayed incident weight
  - RiskSignal: one evaluator's contribution for one ping
  - Alert, AlertPayload: emitted alert and its wire representation
  - APIResponse, APIError: standard HTTP envelope

RiskLevel carries the four-tier severity ordering (low, medium, high,
critical) with helpers for parsing, comparison, tier scores, and
escalation.

Models hold no behavior beyond pure accessors and carry no internal
locking; stores own all mutation and concurrency control.
*/
package models
