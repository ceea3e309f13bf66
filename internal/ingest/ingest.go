// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package ingest validates location pings and maintains bounded
// per-session movement tracks. A ping that fails any gate is rejected
// with a typed reason and never reaches the scoring pipeline.
package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// RejectionReason identifies why a ping was refused.
type RejectionReason string

const (
	ReasonOutOfRange  RejectionReason = "out_of_range"
	ReasonLowAccuracy RejectionReason = "low_accuracy"
	ReasonOutOfOrder  RejectionReason = "out_of_order"
	ReasonStale       RejectionReason = "stale"
	ReasonDuplicate   RejectionReason = "duplicate"
)

// RejectionError carries the typed reason for a refused ping.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ping rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason RejectionReason, format string, args ...interface{}) error {
	metrics.RecordPingRejected(string(reason))
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// session holds one session's bounded track. Access is serialized by the
// Ingestor mutex.
type session struct {
	userID   string
	deviceID string
	pings    []models.LocationPing
	lastSeen time.Time
}

// Ingestor validates pings and maintains session tracks. Tracks are
// bounded both by age and by count; the oldest pings are evicted first.
type Ingestor struct {
	mu       sync.RWMutex
	sessions map[string]*session
	cfg      config.IngestConfig

	// now is replaceable for tests.
	now func() time.Time
}

// New creates an Ingestor with the given bounds.
func New(cfg config.IngestConfig) *Ingestor {
	return &Ingestor{
		sessions: make(map[string]*session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Ingest validates a ping against all gates and, on success, appends it
// to the session track. It returns a snapshot of the track after the
// append so callers can score it without holding the ingestor lock.
//
// Gates, in order:
//  1. Coordinates within valid latitude/longitude ranges
//  2. Reported accuracy within the configured ceiling
//  3. Timestamp not older than the track retention window
//  4. Not a duplicate of the last accepted ping (same timestamp and coordinates)
//  5. Timestamp strictly after the last accepted ping
func (in *Ingestor) Ingest(ping models.LocationPing) ([]models.LocationPing, error) {
	if !geo.ValidLatitude(ping.Latitude) || !geo.ValidLongitude(ping.Longitude) {
		return nil, reject(ReasonOutOfRange, "coordinates (%v, %v) out of range", ping.Latitude, ping.Longitude)
	}
	if ping.AccuracyMeters > in.cfg.MaxAccuracyMeters {
		return nil, reject(ReasonLowAccuracy, "accuracy %.1fm exceeds ceiling %.1fm", ping.AccuracyMeters, in.cfg.MaxAccuracyMeters)
	}

	now := in.now()
	if now.Sub(ping.Timestamp) > in.cfg.TrackMaxAge {
		return nil, reject(ReasonStale, "timestamp %s older than retention window %s", ping.Timestamp.Format(time.RFC3339), in.cfg.TrackMaxAge)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	s, ok := in.sessions[ping.SessionID]
	if !ok {
		s = &session{userID: ping.UserID, deviceID: ping.DeviceID}
		in.sessions[ping.SessionID] = s
		metrics.ActiveSessions.Set(float64(len(in.sessions)))
	}

	if n := len(s.pings); n > 0 {
		last := s.pings[n-1]
		if ping.Timestamp.Equal(last.Timestamp) &&
			geo.SameCoordinate(ping.Latitude, ping.Longitude, last.Latitude, last.Longitude) {
			return nil, reject(ReasonDuplicate, "identical to last accepted ping at %s", last.Timestamp.Format(time.RFC3339))
		}
		if !ping.Timestamp.After(last.Timestamp) {
			return nil, reject(ReasonOutOfOrder, "timestamp %s not after last accepted %s",
				ping.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
		}
	}

	s.pings = append(s.pings, ping)
	s.lastSeen = now
	in.trim(s, now)

	metrics.PingsAccepted.Inc()

	snapshot := make([]models.LocationPing, len(s.pings))
	copy(snapshot, s.pings)
	return snapshot, nil
}

// trim enforces the age and count bounds on a session track. Caller
// holds the ingestor lock.
func (in *Ingestor) trim(s *session, now time.Time) {
	cutoff := now.Add(-in.cfg.TrackMaxAge)
	evicted := 0

	i := 0
	for i < len(s.pings) && s.pings[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		evicted += i
		s.pings = s.pings[i:]
	}

	if over := len(s.pings) - in.cfg.TrackMaxCount; over > 0 {
		evicted += over
		s.pings = s.pings[over:]
	}

	if evicted > 0 {
		metrics.TrackPingsEvicted.Add(float64(evicted))
	}
}

// Track returns a copy of the session's current track, oldest first.
func (in *Ingestor) Track(sessionID string) ([]models.LocationPing, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	s, ok := in.sessions[sessionID]
	if !ok {
		return nil, false
	}

	out := make([]models.LocationPing, len(s.pings))
	copy(out, s.pings)
	return out, true
}

// SessionCount returns the number of currently tracked sessions.
func (in *Ingestor) SessionCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.sessions)
}

// SessionIDs returns the identifiers of all tracked sessions.
func (in *Ingestor) SessionIDs() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	ids := make([]string, 0, len(in.sessions))
	for id := range in.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Sweep drops sessions that have gone idle past the configured timeout
// and trims surviving tracks. It returns the dropped tracks keyed by
// session ID so callers can archive them before teardown.
func (in *Ingestor) Sweep(now time.Time) map[string][]models.LocationPing {
	in.mu.Lock()
	defer in.mu.Unlock()

	dropped := make(map[string][]models.LocationPing)
	for id, s := range in.sessions {
		if now.Sub(s.lastSeen) > in.cfg.SessionIdleTimeout {
			dropped[id] = s.pings
			delete(in.sessions, id)
			continue
		}
		in.trim(s, now)
	}

	metrics.ActiveSessions.Set(float64(len(in.sessions)))
	return dropped
}

// SetNowFunc overrides the clock. Tests only.
func (in *Ingestor) SetNowFunc(now func() time.Time) {
	in.now = now
}
