// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package alert turns risk assessments into deduplicated alerts and
// fans them out to delivery sinks through a bounded queue.
package alert

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
	"github.com/geosentry/geosentry/internal/risk"
)

// actionTags maps a risk level to the suggested follow-up actions
// carried on the alert payload.
var actionTags = map[models.RiskLevel][]string{
	models.RiskLow:      {"monitor"},
	models.RiskMedium:   {"monitor", "verify_identity"},
	models.RiskHigh:     {"verify_identity", "hold_transaction"},
	models.RiskCritical: {"hold_transaction", "block_card", "notify_fraud_team"},
}

// ActionTags returns the suggested action tags for a risk level.
func ActionTags(level models.RiskLevel) []string {
	tags := actionTags[level]
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// Emitter decides whether an assessment becomes an alert. Emission is
// deduplicated per (session, dominant factor category, time bucket) and
// never blocks: the outbound queue is bounded, and when it is full the
// oldest queued alert is dropped.
type Emitter struct {
	cfg      config.AlertConfig
	minLevel models.RiskLevel

	mu   sync.Mutex
	seen map[uint64]time.Time

	queue chan *models.Alert

	now func() time.Time
}

// NewEmitter creates an Emitter. The minimum level comes from
// configuration; assessments below it are suppressed.
func NewEmitter(cfg config.AlertConfig) (*Emitter, error) {
	minLevel, err := models.ParseRiskLevel(cfg.MinLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum alert level: %w", err)
	}
	return &Emitter{
		cfg:      cfg,
		minLevel: minLevel,
		seen:     make(map[uint64]time.Time),
		queue:    make(chan *models.Alert, cfg.QueueSize),
		now:      time.Now,
	}, nil
}

// DedupKey hashes (session, dominant factor category, time bucket) with
// FNV-1a. The bucket floors the timestamp to the dedup window, so two
// identical breach conditions inside one window collide and a third
// after the window rolls over does not.
func DedupKey(sessionID string, category models.SignalSource, bucket time.Time) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{'|'})
	h.Write([]byte(category))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(bucket.Unix(), 10)))
	return h.Sum64()
}

// dominantCategory returns the source of the strongest signal. Ties go
// to the earlier source in the fixed geofence, hotspot, pattern order,
// which is the order the aggregator already sorted by.
func dominantCategory(signals []models.RiskSignal) models.SignalSource {
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Source
}

// MaybeEmit creates and enqueues an Alert for an assessment, or returns
// nil when emission is suppressed. Suppression reasons: no signals,
// level below the configured minimum, or a duplicate dedup key within
// the window.
func (e *Emitter) MaybeEmit(assessment risk.Assessment, ping models.LocationPing) *models.Alert {
	if len(assessment.Signals) == 0 {
		return nil
	}
	if assessment.Level.Rank() < e.minLevel.Rank() {
		metrics.RecordAlertSuppressed("below_min_level")
		return nil
	}

	category := dominantCategory(assessment.Signals)
	bucket := ping.Timestamp.Truncate(e.cfg.DedupWindow)
	key := DedupKey(ping.SessionID, category, bucket)

	now := e.now()

	e.mu.Lock()
	if emitted, ok := e.seen[key]; ok && now.Sub(emitted) < e.cfg.DedupWindow {
		e.mu.Unlock()
		metrics.RecordAlertSuppressed("dedup")
		return nil
	}
	e.seen[key] = now
	e.pruneLocked(now)
	e.mu.Unlock()

	alert := &models.Alert{
		ID:                  uuid.NewString(),
		SessionID:           ping.SessionID,
		UserID:              ping.UserID,
		RiskLevel:           assessment.Level,
		CompositeScore:      assessment.CompositeScore,
		Latitude:            ping.Latitude,
		Longitude:           ping.Longitude,
		ContributingFactors: assessment.Factors,
		SuggestedActionTags: ActionTags(assessment.Level),
		CreatedAt:           ping.Timestamp,
		DedupKey:            strconv.FormatUint(key, 16),
	}

	e.enqueue(alert)
	metrics.RecordAlertEmitted(string(assessment.Level))
	return alert
}

// enqueue adds an alert without ever blocking. A full queue drops its
// oldest entry first.
func (e *Emitter) enqueue(alert *models.Alert) {
	for {
		select {
		case e.queue <- alert:
			metrics.AlertQueueDepth.Set(float64(len(e.queue)))
			return
		default:
		}

		select {
		case dropped := <-e.queue:
			metrics.AlertsDropped.Inc()
			logging.Warn().
				Str("alert_id", dropped.ID).
				Str("session_id", dropped.SessionID).
				Msg("alert queue full, dropped oldest alert")
		default:
		}
	}
}

// pruneLocked discards dedup entries older than one window. Caller
// holds the emitter mutex.
func (e *Emitter) pruneLocked(now time.Time) {
	for key, emitted := range e.seen {
		if now.Sub(emitted) >= e.cfg.DedupWindow {
			delete(e.seen, key)
		}
	}
}

// Queue exposes the outbound alert queue for the dispatcher.
func (e *Emitter) Queue() <-chan *models.Alert {
	return e.queue
}

// QueueDepth returns the number of alerts waiting for dispatch.
func (e *Emitter) QueueDepth() int {
	return len(e.queue)
}

// SetNowFunc overrides the clock. Tests only.
func (e *Emitter) SetNowFunc(now func() time.Time) {
	e.now = now
}
