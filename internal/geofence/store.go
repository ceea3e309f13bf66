// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package geofence maintains the geofence set and evaluates pings
// against it. The fence set is read on every evaluation and written
// rarely, so reads go through an atomically swapped immutable snapshot
// and never block on the writer path.
package geofence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/models"
)

var (
	ErrNotFound     = errors.New("geofence not found")
	ErrInvalidShape = errors.New("invalid geofence shape")
)

// Store owns the geofence set. All mutation goes through the Store
// mutex; evaluation reads the published snapshot without locking.
type Store struct {
	mu       sync.Mutex
	fences   map[string]*models.Geofence
	breaches map[string][]time.Time
	snapshot atomic.Pointer[[]models.Geofence]

	now func() time.Time
}

// NewStore creates an empty geofence store.
func NewStore() *Store {
	s := &Store{
		fences:   make(map[string]*models.Geofence),
		breaches: make(map[string][]time.Time),
		now:      time.Now,
	}
	s.publish()
	return s
}

// validateShape rejects degenerate geometry before it reaches the
// snapshot: circles need a positive radius, polygons at least three
// distinct vertices.
func validateShape(f *models.Geofence) error {
	switch f.Shape {
	case models.ShapeCircle:
		if f.RadiusMeters <= 0 {
			return fmt.Errorf("%w: circle radius must be positive, got %v", ErrInvalidShape, f.RadiusMeters)
		}
		if !geo.ValidLatitude(f.CenterLat) || !geo.ValidLongitude(f.CenterLon) {
			return fmt.Errorf("%w: circle center (%v, %v) out of range", ErrInvalidShape, f.CenterLat, f.CenterLon)
		}
	case models.ShapePolygon:
		poly := make([]geo.Point, len(f.Vertices))
		for i, v := range f.Vertices {
			poly[i] = geo.Point{Lat: v.Latitude, Lon: v.Longitude}
		}
		if geo.DistinctVertices(poly) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 distinct vertices", ErrInvalidShape)
		}
		for _, v := range f.Vertices {
			if !geo.ValidLatitude(v.Latitude) || !geo.ValidLongitude(v.Longitude) {
				return fmt.Errorf("%w: vertex (%v, %v) out of range", ErrInvalidShape, v.Latitude, v.Longitude)
			}
		}
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidShape, f.Shape)
	}
	return nil
}

// Create validates and adds a geofence, assigning an ID when absent.
func (s *Store) Create(f models.Geofence) (*models.Geofence, error) {
	if err := validateShape(&f); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, exists := s.fences[f.ID]; exists {
		return nil, fmt.Errorf("geofence %s already exists", f.ID)
	}

	now := s.now()
	f.CreatedAt = now
	f.UpdatedAt = now
	s.fences[f.ID] = &f
	s.publish()

	out := f
	return &out, nil
}

// Update replaces a geofence's mutable fields. Shape changes are
// validated the same way as on create.
func (s *Store) Update(f models.Geofence) (*models.Geofence, error) {
	if err := validateShape(&f); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.fences[f.ID]
	if !ok {
		return nil, ErrNotFound
	}

	f.CreatedAt = existing.CreatedAt
	f.CreatedBy = existing.CreatedBy
	f.IncidentCount = existing.IncidentCount
	f.UpdatedAt = s.now()
	s.fences[f.ID] = &f
	s.publish()

	out := f
	return &out, nil
}

// Deactivate marks a geofence inactive. It stays listable but is
// excluded from evaluation snapshots.
func (s *Store) Deactivate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fences[id]
	if !ok {
		return ErrNotFound
	}
	f.Active = false
	f.UpdatedAt = s.now()
	s.publish()
	return nil
}

// Delete removes a geofence entirely.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fences[id]; !ok {
		return ErrNotFound
	}
	delete(s.fences, id)
	delete(s.breaches, id)
	s.publish()
	return nil
}

// Get returns a copy of a geofence by ID.
func (s *Store) Get(id string) (*models.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fences[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyFence(f)
	return &out, nil
}

// List returns copies of all geofences, active or not.
func (s *Store) List() []models.Geofence {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Geofence, 0, len(s.fences))
	for _, f := range s.fences {
		out = append(out, copyFence(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the current immutable evaluation snapshot of active
// geofences. The returned slice must not be mutated.
func (s *Store) Snapshot() []models.Geofence {
	p := s.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// RecordIncident increments a geofence's incident count and remembers
// the breach time for auto-adjust density computation.
func (s *Store) RecordIncident(id string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fences[id]
	if !ok {
		return 0, ErrNotFound
	}
	f.IncidentCount++
	s.breaches[id] = append(s.breaches[id], at)
	s.publish()
	return f.IncidentCount, nil
}

// BreachesSince returns how many breaches were recorded against a
// geofence at or after the cutoff.
func (s *Store) BreachesSince(id string, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.breaches[id] {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneBreaches drops breach records older than the cutoff. Caller
// holds the store mutex.
func (s *Store) pruneBreaches(cutoff time.Time) {
	for id, times := range s.breaches {
		kept := times[:0]
		for _, t := range times {
			if !t.Before(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(s.breaches, id)
		} else {
			s.breaches[id] = kept
		}
	}
}

// publish rebuilds the active-fence snapshot. Caller holds the store
// mutex. The snapshot holds deep copies so later mutation cannot leak
// into an in-flight evaluation.
func (s *Store) publish() {
	active := make([]models.Geofence, 0, len(s.fences))
	for _, f := range s.fences {
		if f.Active {
			active = append(active, copyFence(f))
		}
	}
	// DETERMINISM: snapshot order is fixed so every evaluation walks
	// fences in the same order.
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	s.snapshot.Store(&active)
}

func copyFence(f *models.Geofence) models.Geofence {
	out := *f
	if len(f.Vertices) > 0 {
		out.Vertices = make([]models.Vertex, len(f.Vertices))
		copy(out.Vertices, f.Vertices)
	}
	return out
}

// SetNowFunc overrides the clock. Tests only.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}
