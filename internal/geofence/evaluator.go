// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package geofence

import (
	"fmt"
	"sync"
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// stateKey identifies one session's membership in one geofence.
type stateKey struct {
	sessionID string
	fenceID   string
}

type membership struct {
	enteredAt time.Time
}

// Evaluator tests pings against the active geofence snapshot and tracks
// enter/exit transitions per (session, geofence). Evaluation never
// writes to the fence set except to record incidents on ingress.
type Evaluator struct {
	store *Store
	cfg   config.GeofenceConfig

	mu      sync.Mutex
	members map[stateKey]membership
}

// NewEvaluator creates an Evaluator over the given store.
func NewEvaluator(store *Store, cfg config.GeofenceConfig) *Evaluator {
	return &Evaluator{
		store:   store,
		cfg:     cfg,
		members: make(map[stateKey]membership),
	}
}

// Contains reports whether a point lies inside a geofence. Circle
// containment is boundary-inclusive; polygon containment uses ray
// casting with boundary points counted as inside.
func Contains(f *models.Geofence, lat, lon float64) bool {
	switch f.Shape {
	case models.ShapeCircle:
		return geo.CircleContains(lat, lon, f.CenterLat, f.CenterLon, f.RadiusMeters)
	case models.ShapePolygon:
		poly := make([]geo.Point, len(f.Vertices))
		for i, v := range f.Vertices {
			poly[i] = geo.Point{Lat: v.Latitude, Lon: v.Longitude}
		}
		return geo.PolygonContains(lat, lon, poly)
	default:
		return false
	}
}

// Evaluate tests one ping against every active geofence.
//
// On ingress the entry is recorded as an incident against the fence and
// a breach signal fires when the incident count reaches the fence's
// alert threshold. While the session stays inside, subsequent pings
// produce a reduced dwell signal so a long stay does not repeat the full
// breach score. On egress the membership is cleared.
func (e *Evaluator) Evaluate(ping models.LocationPing) []models.RiskSignal {
	fences := e.store.Snapshot()
	if len(fences) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var signals []models.RiskSignal
	for i := range fences {
		f := &fences[i]
		inside := Contains(f, ping.Latitude, ping.Longitude)
		key := stateKey{sessionID: ping.SessionID, fenceID: f.ID}
		m, member := e.members[key]

		switch {
		case inside && !member:
			e.members[key] = membership{enteredAt: ping.Timestamp}
			metrics.GeofenceTransitions.WithLabelValues("enter").Inc()

			count, err := e.store.RecordIncident(f.ID, ping.Timestamp)
			if err != nil {
				// Fence removed between snapshot and now; skip it.
				continue
			}
			if count >= f.AlertThreshold {
				metrics.GeofenceBreaches.Inc()
				score := f.BaseRiskLevel.TierScore()
				signals = append(signals, models.RiskSignal{
					Source: models.SourceGeofence,
					Score:  score,
					Reasons: []string{fmt.Sprintf(
						"entered geofence %q (risk %s, incident %d of threshold %d)",
						f.Name, f.BaseRiskLevel, count, f.AlertThreshold)},
				})
				metrics.RecordSignal(string(models.SourceGeofence))
			}

		case inside && member:
			dwell := ping.Timestamp.Sub(m.enteredAt)
			score := f.BaseRiskLevel.TierScore() * e.cfg.DwellScoreFactor
			signals = append(signals, models.RiskSignal{
				Source: models.SourceGeofence,
				Score:  score,
				Reasons: []string{fmt.Sprintf(
					"dwelling inside geofence %q for %s (risk %s)",
					f.Name, dwell.Round(time.Second), f.BaseRiskLevel)},
			})
			metrics.RecordSignal(string(models.SourceGeofence))

		case !inside && member:
			delete(e.members, key)
			metrics.GeofenceTransitions.WithLabelValues("exit").Inc()
		}
	}

	return signals
}

// DropSession clears all membership state for a session. Called when
// the ingestor sweeps an idle session.
func (e *Evaluator) DropSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.members {
		if key.sessionID == sessionID {
			delete(e.members, key)
		}
	}
}

// MembershipCount returns the number of live (session, geofence)
// memberships. Used by tests and the health endpoint.
func (e *Evaluator) MembershipCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.members)
}
