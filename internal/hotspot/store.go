// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package hotspot maintains the fraud-hotspot set and scores pings by
// proximity to it. Like the geofence set, hotspots are read on every
// evaluation and written rarely; reads go through an atomically swapped
// immutable snapshot.
package hotspot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/geoindex"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

var ErrNotFound = errors.New("hotspot not found")

// indexCellMeters sizes the proximity index cells. On the order of the
// proximity radius so a query touches few cells.
const indexCellMeters = 1000

// Store owns the hotspot set.
type Store struct {
	mu       sync.Mutex
	spots    map[string]*models.FraudHotspot
	index    *geoindex.Grid
	snapshot atomic.Pointer[[]models.FraudHotspot]

	now func() time.Time
}

// NewStore creates an empty hotspot store.
func NewStore() *Store {
	s := &Store{
		spots: make(map[string]*models.FraudHotspot),
		index: geoindex.NewGrid(indexCellMeters),
		now:   time.Now,
	}
	s.publish()
	return s
}

// Create adds a hotspot, assigning an ID when absent.
func (s *Store) Create(h models.FraudHotspot) (*models.FraudHotspot, error) {
	if !geo.ValidLatitude(h.Latitude) || !geo.ValidLongitude(h.Longitude) {
		return nil, fmt.Errorf("hotspot coordinates (%v, %v) out of range", h.Latitude, h.Longitude)
	}
	if h.IncidentCount < 0 {
		return nil, fmt.Errorf("hotspot incident count must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, exists := s.spots[h.ID]; exists {
		return nil, fmt.Errorf("hotspot %s already exists", h.ID)
	}

	s.spots[h.ID] = &h
	s.index.Insert(h.ID, h.Latitude, h.Longitude)
	s.publish()

	out := h
	return &out, nil
}

// Get returns a copy of a hotspot by ID.
func (s *Store) Get(id string) (*models.FraudHotspot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.spots[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *h
	return &out, nil
}

// List returns copies of all hotspots ordered by ID.
func (s *Store) List() []models.FraudHotspot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FraudHotspot, 0, len(s.spots))
	for _, h := range s.spots {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes a hotspot.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spots[id]; !ok {
		return ErrNotFound
	}
	delete(s.spots, id)
	s.index.Remove(id)
	s.publish()
	return nil
}

// Nearby returns copies of all hotspots within radiusMeters of the
// point, ordered by ID. Lookup goes through the spatial index, so cost
// scales with local density rather than the full hotspot count.
func (s *Store) Nearby(lat, lon, radiusMeters float64) []models.FraudHotspot {
	ids := s.index.QueryRadius(lat, lon, radiusMeters)
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FraudHotspot, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.spots[id]; ok {
			out = append(out, *h)
		}
	}
	return out
}

// Snapshot returns the current immutable evaluation snapshot. The
// returned slice must not be mutated.
func (s *Store) Snapshot() []models.FraudHotspot {
	p := s.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// RecordIncident applies exponential decay to a hotspot's accumulated
// incident weight up to now, then adds one fresh incident.
func (s *Store) RecordIncident(id string, at time.Time, halfLife time.Duration) (*models.FraudHotspot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.spots[id]
	if !ok {
		return nil, ErrNotFound
	}

	if !h.LastIncidentTime.IsZero() {
		h.IncidentCount = DecayedCount(h.IncidentCount, at.Sub(h.LastIncidentTime), halfLife)
	}
	h.IncidentCount++
	h.LastIncidentTime = at
	h.LastDecayedAt = at
	s.publish()

	metrics.HotspotIncidents.Inc()
	out := *h
	return &out, nil
}

// DecayedCount halves an incident weight once per half-life elapsed.
// A zero or negative elapsed duration leaves the weight untouched.
func DecayedCount(count float64, elapsed, halfLife time.Duration) float64 {
	if count <= 0 || elapsed <= 0 || halfLife <= 0 {
		return count
	}
	return count * math.Pow(2, -elapsed.Seconds()/halfLife.Seconds())
}

// publish rebuilds the snapshot. Caller holds the store mutex.
func (s *Store) publish() {
	spots := make([]models.FraudHotspot, 0, len(s.spots))
	for _, h := range s.spots {
		spots = append(spots, *h)
	}
	// DETERMINISM: snapshot order is fixed so every evaluation walks
	// hotspots in the same order.
	sort.Slice(spots, func(i, j int) bool { return spots[i].ID < spots[j].ID })
	s.snapshot.Store(&spots)
}

// SetNowFunc overrides the clock. Tests only.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}
