// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package alert

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/models"
	"github.com/geosentry/geosentry/internal/risk"
)

func testCfg() config.AlertConfig {
	return config.AlertConfig{
		DedupWindow: 5 * time.Minute,
		QueueSize:   1024,
		MinLevel:    "low",
	}
}

func breachAssessment(level models.RiskLevel, score float64) risk.Assessment {
	return risk.Assessment{
		CompositeScore: score,
		Level:          level,
		Factors:        []string{"entered geofence"},
		Signals: []models.RiskSignal{
			{Source: models.SourceGeofence, Score: score, Reasons: []string{"entered geofence"}},
		},
	}
}

func emitPing(session string, ts time.Time) models.LocationPing {
	return models.LocationPing{
		SessionID: session,
		UserID:    "user-1",
		Latitude:  40.7128,
		Longitude: -74.0060,
		Timestamp: ts,
	}
}

func newTestEmitter(t *testing.T, cfg config.AlertConfig) *Emitter {
	t.Helper()
	e, err := NewEmitter(cfg)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	return e
}

func TestMaybeEmitBasic(t *testing.T) {
	e := newTestEmitter(t, testCfg())
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(func() time.Time { return ts })

	a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", ts))
	if a == nil {
		t.Fatal("expected alert")
	}
	if a.RiskLevel != models.RiskHigh {
		t.Errorf("level = %s, want high", a.RiskLevel)
	}
	if a.SessionID != "s1" || a.UserID != "user-1" {
		t.Errorf("identity fields wrong: %+v", a)
	}
	if want := []string{"verify_identity", "hold_transaction"}; !reflect.DeepEqual(a.SuggestedActionTags, want) {
		t.Errorf("tags = %v, want %v", a.SuggestedActionTags, want)
	}
	if e.QueueDepth() != 1 {
		t.Errorf("queue depth = %d, want 1", e.QueueDepth())
	}
}

func TestMaybeEmitNoSignals(t *testing.T) {
	e := newTestEmitter(t, testCfg())
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if a := e.MaybeEmit(risk.Assessment{Level: models.RiskLow}, emitPing("s1", ts)); a != nil {
		t.Errorf("empty assessment emitted alert %v", a)
	}
}

func TestMaybeEmitMinLevel(t *testing.T) {
	cfg := testCfg()
	cfg.MinLevel = "high"
	e := newTestEmitter(t, cfg)
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(func() time.Time { return ts })

	if a := e.MaybeEmit(breachAssessment(models.RiskMedium, 0.5), emitPing("s1", ts)); a != nil {
		t.Errorf("medium alert emitted with high minimum: %v", a)
	}
	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", ts)); a == nil {
		t.Error("high alert suppressed with high minimum")
	}
}

func TestDedupWithinWindow(t *testing.T) {
	e := newTestEmitter(t, testCfg())
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	now := base
	e.SetNowFunc(func() time.Time { return now })

	// First breach emits.
	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", base)); a == nil {
		t.Fatal("first breach suppressed")
	}

	// Identical condition two minutes later, same window: suppressed.
	now = base.Add(2 * time.Minute)
	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", base.Add(2*time.Minute))); a != nil {
		t.Errorf("duplicate within window emitted alert %v", a)
	}

	// After the window elapses a third occurrence emits again.
	now = base.Add(6 * time.Minute)
	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", base.Add(6*time.Minute))); a == nil {
		t.Error("third occurrence after window suppressed")
	}

	if e.QueueDepth() != 2 {
		t.Errorf("queue depth = %d, want 2", e.QueueDepth())
	}
}

func TestDedupIsolatedBySession(t *testing.T) {
	e := newTestEmitter(t, testCfg())
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(func() time.Time { return ts })

	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", ts)); a == nil {
		t.Fatal("s1 breach suppressed")
	}
	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s2", ts)); a == nil {
		t.Error("s2 breach suppressed by s1 dedup state")
	}
}

func TestDedupKeyStable(t *testing.T) {
	bucket := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	k1 := DedupKey("s1", models.SourceGeofence, bucket)
	k2 := DedupKey("s1", models.SourceGeofence, bucket)
	if k1 != k2 {
		t.Error("same inputs produced different keys")
	}

	if DedupKey("s2", models.SourceGeofence, bucket) == k1 {
		t.Error("different session produced same key")
	}
	if DedupKey("s1", models.SourcePattern, bucket) == k1 {
		t.Error("different category produced same key")
	}
	if DedupKey("s1", models.SourceGeofence, bucket.Add(5*time.Minute)) == k1 {
		t.Error("different bucket produced same key")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	cfg := testCfg()
	cfg.QueueSize = 2
	e := newTestEmitter(t, cfg)
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(func() time.Time { return base })

	// Three distinct sessions so dedup never suppresses.
	var emitted []*models.Alert
	for _, session := range []string{"s1", "s2", "s3"} {
		a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing(session, base))
		if a == nil {
			t.Fatalf("session %s suppressed", session)
		}
		emitted = append(emitted, a)
	}

	if e.QueueDepth() != 2 {
		t.Fatalf("queue depth = %d, want 2", e.QueueDepth())
	}

	// The oldest alert (s1) was dropped; s2 and s3 remain in order.
	first := <-e.Queue()
	second := <-e.Queue()
	if first.ID != emitted[1].ID || second.ID != emitted[2].ID {
		t.Errorf("queue = [%s, %s], want [%s, %s]",
			first.SessionID, second.SessionID, "s2", "s3")
	}
}

func TestActionTagsPerLevel(t *testing.T) {
	tests := []struct {
		level models.RiskLevel
		want  []string
	}{
		{models.RiskLow, []string{"monitor"}},
		{models.RiskMedium, []string{"monitor", "verify_identity"}},
		{models.RiskHigh, []string{"verify_identity", "hold_transaction"}},
		{models.RiskCritical, []string{"hold_transaction", "block_card", "notify_fraud_team"}},
	}

	for _, tt := range tests {
		if got := ActionTags(tt.level); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ActionTags(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// recordingSink captures delivered alerts and optionally fails.
type recordingSink struct {
	name string
	fail bool

	mu     sync.Mutex
	alerts []*models.Alert
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Deliver(_ context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestDispatcherFansOutToAllSinks(t *testing.T) {
	e := newTestEmitter(t, testCfg())
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(func() time.Time { return ts })

	healthy := &recordingSink{name: "store"}
	broken := &recordingSink{name: "webhook", fail: true}
	trailing := &recordingSink{name: "websocket"}

	d := NewDispatcher(e, healthy, broken, trailing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	if a := e.MaybeEmit(breachAssessment(models.RiskHigh, 0.75), emitPing("s1", ts)); a == nil {
		t.Fatal("alert suppressed")
	}

	deadline := time.After(2 * time.Second)
	for healthy.count() == 0 || trailing.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("dispatcher did not deliver in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The broken sink did not stop delivery to the one after it.
	if trailing.count() != 1 {
		t.Errorf("trailing sink deliveries = %d, want 1", trailing.count())
	}

	cancel()
	<-done
}
