// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package risk merges geofence, hotspot, and pattern signals into a
// single deterministic assessment.
package risk

import (
	"sort"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/models"
)

// Assessment is the merged result of one evaluation.
type Assessment struct {
	CompositeScore float64
	Level          models.RiskLevel
	Factors        []string
	Signals        []models.RiskSignal
}

// Aggregator combines per-source signals under fixed weights.
//
// Each source contributes the maximum score among its signals,
// multiplied by its weight. Absent sources contribute zero; weights are
// never renormalized, so a single-source assessment scores
// conservatively low. The alert level is derived from the effective
// score, the larger of the composite and the strongest individual
// signal, so a single maximal-confidence signal is never diluted below
// its own severity by missing sources.
type Aggregator struct {
	cfg config.RiskConfig
}

// NewAggregator creates an Aggregator with the given weights and level
// thresholds.
func NewAggregator(cfg config.RiskConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// sourceOrder fixes the factor ordering: geofence, hotspot, pattern.
var sourceOrder = map[models.SignalSource]int{
	models.SourceGeofence: 0,
	models.SourceHotspot:  1,
	models.SourcePattern:  2,
}

// Aggregate merges a signal set. The result is independent of input
// order: signals are sorted by (source, score descending, reason)
// before factors are collected, and per-source maxima are
// order-insensitive.
func (a *Aggregator) Aggregate(signals []models.RiskSignal) Assessment {
	sorted := make([]models.RiskSignal, len(signals))
	copy(sorted, signals)
	// DETERMINISM: fixed sort makes Aggregate permutation-invariant.
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i], sorted[j]
		if sourceOrder[si.Source] != sourceOrder[sj.Source] {
			return sourceOrder[si.Source] < sourceOrder[sj.Source]
		}
		if si.Score != sj.Score {
			return si.Score > sj.Score
		}
		return firstReason(si) < firstReason(sj)
	})

	var (
		maxBySource = map[models.SignalSource]float64{}
		peak        float64
		factors     []string
	)
	for _, sig := range sorted {
		if sig.Score > maxBySource[sig.Source] {
			maxBySource[sig.Source] = sig.Score
		}
		if sig.Score > peak {
			peak = sig.Score
		}
		factors = append(factors, sig.Reasons...)
	}

	composite := a.cfg.GeofenceWeight*maxBySource[models.SourceGeofence] +
		a.cfg.HotspotWeight*maxBySource[models.SourceHotspot] +
		a.cfg.PatternWeight*maxBySource[models.SourcePattern]

	effective := composite
	if peak > effective {
		effective = peak
	}

	return Assessment{
		CompositeScore: composite,
		Level:          a.Level(effective),
		Factors:        factors,
		Signals:        sorted,
	}
}

// Level maps a score to a risk level by the configured thresholds.
func (a *Aggregator) Level(score float64) models.RiskLevel {
	switch {
	case score >= a.cfg.CriticalThreshold:
		return models.RiskCritical
	case score >= a.cfg.HighThreshold:
		return models.RiskHigh
	case score >= a.cfg.MediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func firstReason(s models.RiskSignal) string {
	if len(s.Reasons) == 0 {
		return ""
	}
	return s.Reasons[0]
}
