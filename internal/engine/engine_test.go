// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geosentry/geosentry/internal/alert"
	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geofence"
	"github.com/geosentry/geosentry/internal/hotspot"
	"github.com/geosentry/geosentry/internal/ingest"
	"github.com/geosentry/geosentry/internal/models"
	"github.com/geosentry/geosentry/internal/pattern"
	"github.com/geosentry/geosentry/internal/risk"
)

func testConfig() *config.Config {
	return &config.Config{
		Ingest: config.IngestConfig{
			MaxAccuracyMeters:  100,
			TrackMaxAge:        60 * time.Minute,
			TrackMaxCount:      200,
			SessionIdleTimeout: 30 * time.Minute,
			MailboxSize:        2,
		},
		Geofence: config.GeofenceConfig{
			DwellScoreFactor:   0.5,
			MaxRadiusMeters:    2000,
			RadiusGrowthFactor: 1.25,
		},
		Hotspot: config.HotspotConfig{
			ProximityRadiusMeters: 200,
			IncidentHalfLife:      24 * time.Hour,
			IncidentSaturation:    10,
			NightMultiplier:       1.5,
			NightStartHour:        22,
			NightEndHour:          5,
			ScoreFloor:            0.1,
		},
		Pattern: config.PatternConfig{
			MinTrackPings:      3,
			MaxSpeedKmH:        150,
			CircularityRatio:   0.2,
			MinPathMeters:      300,
			LoiterRadiusMeters: 50,
			LoiterDwell:        20 * time.Minute,
		},
		Risk: config.RiskConfig{
			GeofenceWeight:    0.4,
			HotspotWeight:     0.3,
			PatternWeight:     0.3,
			CriticalThreshold: 0.85,
			HighThreshold:     0.65,
			MediumThreshold:   0.4,
		},
		Alert: config.AlertConfig{
			DedupWindow: 5 * time.Minute,
			QueueSize:   64,
			MinLevel:    "low",
		},
	}
}

type recordingArchiver struct {
	mu       sync.Mutex
	sessions []string
	tracks   map[string]int
}

func (r *recordingArchiver) ArchiveTrack(_ context.Context, sessionID string, track []models.LocationPing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessionID)
	if r.tracks == nil {
		r.tracks = make(map[string]int)
	}
	r.tracks[sessionID] = len(track)
	return nil
}

func newTestEngine(t *testing.T, cfg *config.Config, archive TrackArchiver) (*Engine, *ingest.Ingestor) {
	t.Helper()

	fences := geofence.NewStore()
	hotspots := hotspot.NewStore()
	ingestor := ingest.New(cfg.Ingest)
	emitter, err := alert.NewEmitter(cfg.Alert)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	return New(cfg, Deps{
		Ingestor:   ingestor,
		Fences:     fences,
		Evaluator:  geofence.NewEvaluator(fences, cfg.Geofence),
		Hotspots:   hotspots,
		Scorer:     hotspot.NewScorer(hotspots, cfg.Hotspot),
		Analyzer:   pattern.NewAnalyzer(cfg.Pattern),
		Aggregator: risk.NewAggregator(cfg.Risk),
		Emitter:    emitter,
		Archive:    archive,
	}), ingestor
}

func ping(session string, lat, lon float64, at time.Time) models.LocationPing {
	return models.LocationPing{
		SessionID:      session,
		UserID:         "user-1",
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: 10,
		Timestamp:      at,
	}
}

func TestProcessPingAccepted(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)

	res, err := eng.ProcessPing(context.Background(), ping("sess-1", 51.5, -0.12, time.Now()))
	if err != nil {
		t.Fatalf("ProcessPing: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("accepted = false, reason %s", res.RejectionReason)
	}
	if res.Assessment.Level != models.RiskLow {
		t.Errorf("level = %s, want low for an empty world", res.Assessment.Level)
	}
	if eng.WorkerCount() != 1 {
		t.Errorf("worker count = %d, want 1", eng.WorkerCount())
	}
}

func TestProcessPingRejection(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)

	res, err := eng.ProcessPing(context.Background(), models.LocationPing{
		SessionID:      "sess-1",
		UserID:         "user-1",
		Latitude:       95, // out of range
		Longitude:      -0.12,
		AccuracyMeters: 10,
		Timestamp:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessPing: %v", err)
	}
	if res.Accepted {
		t.Fatal("accepted = true for latitude 95")
	}
	if res.RejectionReason != ingest.ReasonOutOfRange {
		t.Errorf("reason = %s, want %s", res.RejectionReason, ingest.ReasonOutOfRange)
	}
}

func TestProcessPingOrderedPerSession(t *testing.T) {
	eng, ingestor := newTestEngine(t, testConfig(), nil)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		p := ping("sess-1", 51.5+float64(i)*0.0001, -0.12, base.Add(time.Duration(i)*time.Second))
		res, err := eng.ProcessPing(context.Background(), p)
		if err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
		if !res.Accepted {
			t.Fatalf("ping %d rejected: %s", i, res.RejectionReason)
		}
	}

	track, ok := ingestor.Track("sess-1")
	if !ok || len(track) != 5 {
		t.Fatalf("track length = %d, want 5", len(track))
	}
	for i := 1; i < len(track); i++ {
		if track[i].Timestamp.Before(track[i-1].Timestamp) {
			t.Fatalf("track out of order at %d", i)
		}
	}
}

func TestProcessPingMailboxFull(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)

	// Stop the session worker without forgetting it so the mailbox is
	// never drained.
	w, err := eng.workerFor("sess-1")
	if err != nil {
		t.Fatalf("workerFor: %v", err)
	}
	close(w.stop)
	eng.wg.Wait()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < testConfig().Ingest.MailboxSize; i++ {
		if _, err := eng.ProcessPing(canceled, ping("sess-1", 51.5, -0.12, time.Now())); !errors.Is(err, context.Canceled) {
			t.Fatalf("enqueue %d: err = %v, want context.Canceled", i, err)
		}
	}

	if _, err := eng.ProcessPing(canceled, ping("sess-1", 51.5, -0.12, time.Now())); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("err = %v, want ErrMailboxFull", err)
	}
}

func TestPanicIsolatedToSession(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)
	eng.deps.Analyzer = nil // force a panic inside the pipeline

	res, err := eng.ProcessPing(context.Background(), ping("sess-1", 51.5, -0.12, time.Now()))
	if err != nil {
		t.Fatalf("ProcessPing: %v", err)
	}
	if res.Accepted {
		t.Fatal("accepted = true after pipeline panic")
	}
	if res.RejectionReason != "internal_error" {
		t.Errorf("reason = %s, want internal_error", res.RejectionReason)
	}

	// The worker survives and keeps answering.
	res, err = eng.ProcessPing(context.Background(), ping("sess-1", 51.5, -0.12, time.Now().Add(time.Second)))
	if err != nil {
		t.Fatalf("second ProcessPing: %v", err)
	}
	if res.RejectionReason != "internal_error" {
		t.Errorf("second reason = %s, want internal_error", res.RejectionReason)
	}
	if eng.WorkerCount() != 1 {
		t.Errorf("worker count = %d, want 1", eng.WorkerCount())
	}
}

func TestShutdownRejectsNewPings(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)

	if _, err := eng.ProcessPing(context.Background(), ping("sess-1", 51.5, -0.12, time.Now())); err != nil {
		t.Fatalf("ProcessPing: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- eng.Serve(ctx) }()
	cancel()

	select {
	case err := <-serveErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, err := eng.ProcessPing(context.Background(), ping("sess-2", 51.5, -0.12, time.Now())); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("err = %v, want ErrShuttingDown", err)
	}
}

func TestSweepOnceArchivesInOrder(t *testing.T) {
	cfg := testConfig()
	archive := &recordingArchiver{}
	eng, ingestor := newTestEngine(t, cfg, archive)

	now := time.Now()
	ingestor.SetNowFunc(func() time.Time { return now })

	for _, session := range []string{"sess-b", "sess-a", "sess-c"} {
		if _, err := eng.ProcessPing(context.Background(), ping(session, 51.5, -0.12, now)); err != nil {
			t.Fatalf("ping %s: %v", session, err)
		}
	}
	if eng.WorkerCount() != 3 {
		t.Fatalf("worker count = %d, want 3", eng.WorkerCount())
	}

	reaped := eng.SweepOnce(context.Background(), now.Add(cfg.Ingest.SessionIdleTimeout+time.Minute))
	if reaped != 3 {
		t.Fatalf("reaped = %d, want 3", reaped)
	}

	want := []string{"sess-a", "sess-b", "sess-c"}
	if len(archive.sessions) != len(want) {
		t.Fatalf("archived sessions = %v, want %v", archive.sessions, want)
	}
	for i, id := range want {
		if archive.sessions[i] != id {
			t.Fatalf("archive order = %v, want %v", archive.sessions, want)
		}
		if archive.tracks[id] != 1 {
			t.Errorf("archived track for %s has %d pings, want 1", id, archive.tracks[id])
		}
	}

	if eng.WorkerCount() != 0 {
		t.Errorf("worker count after sweep = %d, want 0", eng.WorkerCount())
	}
	if _, ok := ingestor.Track("sess-a"); ok {
		t.Error("track survived sweep")
	}
}

func TestAssessTrack(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), nil)

	if _, ok := eng.AssessTrack("missing"); ok {
		t.Fatal("AssessTrack returned ok for unknown session")
	}

	if _, err := eng.ProcessPing(context.Background(), ping("sess-1", 51.5, -0.12, time.Now())); err != nil {
		t.Fatalf("ProcessPing: %v", err)
	}
	assessment, ok := eng.AssessTrack("sess-1")
	if !ok {
		t.Fatal("AssessTrack returned !ok for live session")
	}
	if assessment.Level != models.RiskLow {
		t.Errorf("level = %s, want low", assessment.Level)
	}
}
