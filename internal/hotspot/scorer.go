// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package hotspot

import (
	"fmt"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// Scorer scores pings by proximity to decayed fraud-hotspot history.
//
// For each hotspot within the proximity radius:
//
//	score = distance_decay × incident_decay × time_of_day_multiplier
//
// distance_decay is linear, `1 - distance/radius`, reaching zero at the
// radius boundary. incident_decay halves the accumulated incident
// weight once per half-life since the last incident, then saturates at
// the configured incident count. Pings between the configured night
// hours get the night multiplier. Signals below the floor are dropped.
type Scorer struct {
	store *Store
	cfg   config.HotspotConfig
}

// NewScorer creates a Scorer over the given store.
func NewScorer(store *Store, cfg config.HotspotConfig) *Scorer {
	return &Scorer{store: store, cfg: cfg}
}

// Score evaluates one ping against the hotspots within the proximity
// radius. The store's spatial index keeps this cheap even with a large
// hotspot set.
func (sc *Scorer) Score(ping models.LocationPing) []models.RiskSignal {
	spots := sc.store.Nearby(ping.Latitude, ping.Longitude, sc.cfg.ProximityRadiusMeters)
	if len(spots) == 0 {
		return nil
	}

	tod := sc.timeOfDayMultiplier(ping.Timestamp.UTC().Hour())

	var signals []models.RiskSignal
	for i := range spots {
		h := &spots[i]

		distance := geo.HaversineMeters(ping.Latitude, ping.Longitude, h.Latitude, h.Longitude)

		distanceDecay := 1 - distance/sc.cfg.ProximityRadiusMeters

		decayed := DecayedCount(h.IncidentCount, ping.Timestamp.Sub(h.LastIncidentTime), sc.cfg.IncidentHalfLife)
		incidentDecay := decayed / sc.cfg.IncidentSaturation
		if incidentDecay > 1 {
			incidentDecay = 1
		}

		score := distanceDecay * incidentDecay * tod
		if score > 1 {
			score = 1
		}
		if score < sc.cfg.ScoreFloor {
			continue
		}

		reason := fmt.Sprintf("within %.0fm of hotspot %q (%.1f decayed incidents)",
			distance, h.Name, decayed)
		if tod > 1 {
			reason += fmt.Sprintf(", night hours %.1fx", tod)
		}

		signals = append(signals, models.RiskSignal{
			Source:  models.SourceHotspot,
			Score:   score,
			Reasons: []string{reason},
		})
		metrics.RecordSignal(string(models.SourceHotspot))
	}

	return signals
}

// timeOfDayMultiplier returns the night multiplier for hours within the
// configured night span, which may wrap past midnight.
func (sc *Scorer) timeOfDayMultiplier(hour int) float64 {
	start, end := sc.cfg.NightStartHour, sc.cfg.NightEndHour
	var night bool
	if start <= end {
		night = hour >= start && hour < end
	} else {
		night = hour >= start || hour < end
	}
	if night {
		return sc.cfg.NightMultiplier
	}
	return 1.0
}
