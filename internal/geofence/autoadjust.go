// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package geofence

import (
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// Adjuster periodically recomputes auto-adjusting geofences from the
// density of recent breaches. This is the only writer path for fence
// risk levels and radii; evaluation stays read-only.
type Adjuster struct {
	store *Store
	cfg   config.GeofenceConfig
}

// NewAdjuster creates an Adjuster over the given store.
func NewAdjuster(store *Store, cfg config.GeofenceConfig) *Adjuster {
	return &Adjuster{store: store, cfg: cfg}
}

// AdjustOnce runs a single recompute pass. For every active fence with
// auto-adjust enabled: when breaches within the decay window reach the
// configured threshold, the risk level escalates one tier (capped at
// critical) and a circle's radius grows by the growth factor up to the
// configured maximum. It returns how many fences were adjusted.
func (a *Adjuster) AdjustOnce(now time.Time) int {
	cutoff := now.Add(-a.cfg.AutoAdjustDecayWindow)
	adjusted := 0

	for _, f := range a.store.List() {
		if !f.Active || !f.AutoAdjust {
			continue
		}

		recent := a.store.BreachesSince(f.ID, cutoff)
		if recent < a.cfg.AutoAdjustBreachThreshold {
			continue
		}

		prevLevel := f.BaseRiskLevel
		prevRadius := f.RadiusMeters

		f.BaseRiskLevel = f.BaseRiskLevel.Escalate()
		if f.Shape == models.ShapeCircle {
			grown := f.RadiusMeters * a.cfg.RadiusGrowthFactor
			if grown > a.cfg.MaxRadiusMeters {
				grown = a.cfg.MaxRadiusMeters
			}
			f.RadiusMeters = grown
		}

		if f.BaseRiskLevel == prevLevel && f.RadiusMeters == prevRadius {
			continue
		}

		if _, err := a.store.Update(f); err != nil {
			logging.Error().Err(err).Str("geofence_id", f.ID).Msg("auto-adjust update failed")
			continue
		}

		adjusted++
		metrics.GeofenceRadiusAdjustments.Inc()
		logging.Info().
			Str("geofence_id", f.ID).
			Str("name", f.Name).
			Int("recent_breaches", recent).
			Str("risk_level", string(f.BaseRiskLevel)).
			Float64("radius_meters", f.RadiusMeters).
			Msg("geofence auto-adjusted")
	}

	a.prune(cutoff)
	return adjusted
}

// prune discards breach records that fell out of the decay window.
func (a *Adjuster) prune(cutoff time.Time) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	a.store.pruneBreaches(cutoff)
}
