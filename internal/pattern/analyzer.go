// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package pattern analyzes session movement tracks for anomalous
// behavior: impossible travel, circular movement (casing), and
// loitering near sensitive locations.
package pattern

import (
	"fmt"
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geo"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// SensitiveLocation is a point of interest for loitering detection:
// a fraud hotspot or an active geofence center.
type SensitiveLocation struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Analyzer runs the movement heuristics over a session track. The
// heuristics run in a fixed order so the signal list is deterministic
// for a given track.
type Analyzer struct {
	cfg config.PatternConfig
}

// NewAnalyzer creates an Analyzer with the given thresholds.
func NewAnalyzer(cfg config.PatternConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze inspects a track, oldest ping first. Tracks shorter than the
// minimum window return no signals.
func (a *Analyzer) Analyze(track []models.LocationPing, sensitive []SensitiveLocation) []models.RiskSignal {
	if len(track) < a.cfg.MinTrackPings {
		return nil
	}

	var signals []models.RiskSignal
	if sig := a.impossibleTravel(track); sig != nil {
		signals = append(signals, *sig)
	}
	if sig := a.circularMovement(track); sig != nil {
		signals = append(signals, *sig)
	}
	signals = append(signals, a.loitering(track, sensitive)...)

	for range signals {
		metrics.RecordSignal(string(models.SourcePattern))
	}
	return signals
}

// impossibleTravel flags consecutive ping pairs whose implied speed
// exceeds the ceiling. The score scales with how far the worst pair
// exceeds the ceiling, capped at 1.0.
func (a *Analyzer) impossibleTravel(track []models.LocationPing) *models.RiskSignal {
	var (
		flagged  int
		maxSpeed float64
	)

	for i := 1; i < len(track); i++ {
		prev, cur := track[i-1], track[i]
		dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		meters := geo.HaversineMeters(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		kmh := meters / dt * 3.6
		if kmh > a.cfg.MaxSpeedKmH {
			flagged++
			if kmh > maxSpeed {
				maxSpeed = kmh
			}
		}
	}

	if flagged == 0 {
		return nil
	}

	score := maxSpeed/a.cfg.MaxSpeedKmH - 1
	if score > 1 {
		score = 1
	}

	return &models.RiskSignal{
		Source: models.SourcePattern,
		Score:  score,
		Reasons: []string{fmt.Sprintf(
			"impossible travel: %d segment(s) above %.0f km/h ceiling, fastest %.0f km/h",
			flagged, a.cfg.MaxSpeedKmH, maxSpeed)},
	}
}

// circularMovement flags tracks that re-traverse a small area: the
// ratio of straight-line displacement to total path length falls below
// the threshold over a sufficiently long path. The score scales
// inversely with the ratio.
func (a *Analyzer) circularMovement(track []models.LocationPing) *models.RiskSignal {
	first, last := track[0], track[len(track)-1]

	var path float64
	for i := 1; i < len(track); i++ {
		path += geo.HaversineMeters(
			track[i-1].Latitude, track[i-1].Longitude,
			track[i].Latitude, track[i].Longitude)
	}
	if path < a.cfg.MinPathMeters {
		return nil
	}

	displacement := geo.HaversineMeters(first.Latitude, first.Longitude, last.Latitude, last.Longitude)
	ratio := displacement / path
	if ratio >= a.cfg.CircularityRatio {
		return nil
	}

	score := (a.cfg.CircularityRatio - ratio) / a.cfg.CircularityRatio
	if score > 1 {
		score = 1
	}

	return &models.RiskSignal{
		Source: models.SourcePattern,
		Score:  score,
		Reasons: []string{fmt.Sprintf(
			"circular movement: path %.0fm, displacement %.0fm, ratio %.2f, within %.0fm radius",
			path, displacement, ratio, boundingRadius(track))},
	}
}

// boundingRadius is the maximum distance of any ping from the track's
// coordinate centroid.
func boundingRadius(track []models.LocationPing) float64 {
	var sumLat, sumLon float64
	for _, p := range track {
		sumLat += p.Latitude
		sumLon += p.Longitude
	}
	cLat := sumLat / float64(len(track))
	cLon := sumLon / float64(len(track))

	var max float64
	for _, p := range track {
		if d := geo.HaversineMeters(p.Latitude, p.Longitude, cLat, cLon); d > max {
			max = d
		}
	}
	return max
}

// loitering flags sessions that remain within the loiter radius of a
// sensitive location past the dwell threshold. The score is
// proportional to the excess dwell time, capped at 1.0.
func (a *Analyzer) loitering(track []models.LocationPing, sensitive []SensitiveLocation) []models.RiskSignal {
	var signals []models.RiskSignal

	for _, loc := range sensitive {
		dwell := a.contiguousDwell(track, loc)
		if dwell <= a.cfg.LoiterDwell {
			continue
		}

		excess := dwell - a.cfg.LoiterDwell
		score := excess.Seconds() / a.cfg.LoiterDwell.Seconds()
		if score > 1 {
			score = 1
		}

		signals = append(signals, models.RiskSignal{
			Source: models.SourcePattern,
			Score:  score,
			Reasons: []string{fmt.Sprintf(
				"loitering within %.0fm of %q for %s (threshold %s)",
				a.cfg.LoiterRadiusMeters, loc.Name,
				dwell.Round(time.Second), a.cfg.LoiterDwell)},
		})
	}

	return signals
}

// contiguousDwell returns how long the track's newest pings have stayed
// continuously within the loiter radius of a location.
func (a *Analyzer) contiguousDwell(track []models.LocationPing, loc SensitiveLocation) time.Duration {
	start := -1
	for i := len(track) - 1; i >= 0; i-- {
		d := geo.HaversineMeters(track[i].Latitude, track[i].Longitude, loc.Latitude, loc.Longitude)
		if d > a.cfg.LoiterRadiusMeters {
			break
		}
		start = i
	}
	if start < 0 {
		return 0
	}
	return track[len(track)-1].Timestamp.Sub(track[start].Timestamp)
}
