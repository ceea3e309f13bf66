// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/models"
)

func testConfig() config.IngestConfig {
	return config.IngestConfig{
		MaxAccuracyMeters:  100,
		TrackMaxAge:        60 * time.Minute,
		TrackMaxCount:      200,
		SessionIdleTimeout: 30 * time.Minute,
		SweepInterval:      time.Minute,
		MailboxSize:        64,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ping(session string, lat, lon, accuracy float64, ts time.Time) models.LocationPing {
	return models.LocationPing{
		SessionID:      session,
		UserID:         "user-1",
		DeviceID:       "device-1",
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
		Timestamp:      ts,
	}
}

func rejectionReason(t *testing.T, err error) RejectionReason {
	t.Helper()
	var re *RejectionError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RejectionError, got %T: %v", err, err)
	}
	return re.Reason
}

func TestIngestRejections(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		ping   models.LocationPing
		reason RejectionReason
	}{
		{
			name:   "latitude out of range",
			ping:   ping("s1", 90.5, 0, 10, now),
			reason: ReasonOutOfRange,
		},
		{
			name:   "longitude out of range",
			ping:   ping("s1", 0, -180.5, 10, now),
			reason: ReasonOutOfRange,
		},
		{
			name:   "accuracy above ceiling",
			ping:   ping("s1", 40.0, -74.0, 100.5, now),
			reason: ReasonLowAccuracy,
		},
		{
			name:   "stale timestamp",
			ping:   ping("s1", 40.0, -74.0, 10, now.Add(-61*time.Minute)),
			reason: ReasonStale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := New(testConfig())
			in.SetNowFunc(fixedClock(now))

			_, err := in.Ingest(tt.ping)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if got := rejectionReason(t, err); got != tt.reason {
				t.Errorf("reason = %s, want %s", got, tt.reason)
			}
		})
	}
}

func TestIngestAcceptsBoundaryAccuracy(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in := New(testConfig())
	in.SetNowFunc(fixedClock(now))

	track, err := in.Ingest(ping("s1", 40.0, -74.0, 100, now))
	if err != nil {
		t.Fatalf("accuracy exactly at ceiling should be accepted: %v", err)
	}
	if len(track) != 1 {
		t.Errorf("track length = %d, want 1", len(track))
	}
}

func TestIngestDuplicateResubmission(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in := New(testConfig())
	in.SetNowFunc(fixedClock(now))

	p := ping("s1", 40.7128, -74.0060, 10, now.Add(-time.Minute))
	if _, err := in.Ingest(p); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	// Resubmitting the identical ping must be refused and must not grow
	// the track.
	_, err := in.Ingest(p)
	if err == nil {
		t.Fatal("expected duplicate rejection")
	}
	if got := rejectionReason(t, err); got != ReasonDuplicate {
		t.Errorf("reason = %s, want %s", got, ReasonDuplicate)
	}

	track, _ := in.Track("s1")
	if len(track) != 1 {
		t.Errorf("track length = %d, want 1", len(track))
	}
}

func TestIngestOutOfOrder(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in := New(testConfig())
	in.SetNowFunc(fixedClock(now))

	if _, err := in.Ingest(ping("s1", 40.0, -74.0, 10, now.Add(-time.Minute))); err != nil {
		t.Fatalf("first ping: %v", err)
	}

	// Same timestamp, different coordinates: out of order, not duplicate.
	_, err := in.Ingest(ping("s1", 40.1, -74.0, 10, now.Add(-time.Minute)))
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := rejectionReason(t, err); got != ReasonOutOfOrder {
		t.Errorf("reason = %s, want %s", got, ReasonOutOfOrder)
	}

	// Earlier timestamp.
	_, err = in.Ingest(ping("s1", 40.2, -74.0, 10, now.Add(-2*time.Minute)))
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := rejectionReason(t, err); got != ReasonOutOfOrder {
		t.Errorf("reason = %s, want %s", got, ReasonOutOfOrder)
	}
}

func TestIngestSessionsIsolated(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in := New(testConfig())
	in.SetNowFunc(fixedClock(now))

	ts := now.Add(-time.Minute)
	if _, err := in.Ingest(ping("s1", 40.0, -74.0, 10, ts)); err != nil {
		t.Fatalf("s1: %v", err)
	}
	// Same timestamp on a different session is fine.
	if _, err := in.Ingest(ping("s2", 40.0, -74.0, 10, ts)); err != nil {
		t.Fatalf("s2: %v", err)
	}

	if got := in.SessionCount(); got != 2 {
		t.Errorf("SessionCount = %d, want 2", got)
	}
}

func TestTrackCountBound(t *testing.T) {
	cfg := testConfig()
	cfg.TrackMaxCount = 5
	in := New(cfg)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		in.SetNowFunc(fixedClock(ts))
		if _, err := in.Ingest(ping("s1", 40.0, -74.0+float64(i)*0.0001, 10, ts)); err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
	}

	track, ok := in.Track("s1")
	if !ok {
		t.Fatal("session missing")
	}
	if len(track) != 5 {
		t.Fatalf("track length = %d, want 5", len(track))
	}
	// Oldest pings were evicted; the first survivor is ping index 3.
	if want := base.Add(3 * time.Second); !track[0].Timestamp.Equal(want) {
		t.Errorf("oldest surviving timestamp = %s, want %s", track[0].Timestamp, want)
	}
}

func TestTrackAgeBound(t *testing.T) {
	cfg := testConfig()
	cfg.TrackMaxAge = 10 * time.Minute
	in := New(cfg)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in.SetNowFunc(fixedClock(base))
	if _, err := in.Ingest(ping("s1", 40.0, -74.0, 10, base)); err != nil {
		t.Fatalf("first ping: %v", err)
	}

	// Fifteen minutes later the first ping ages out when the next one
	// arrives.
	later := base.Add(15 * time.Minute)
	in.SetNowFunc(fixedClock(later))
	track, err := in.Ingest(ping("s1", 40.001, -74.0, 10, later))
	if err != nil {
		t.Fatalf("second ping: %v", err)
	}
	if len(track) != 1 {
		t.Fatalf("track length = %d, want 1", len(track))
	}
	if !track[0].Timestamp.Equal(later) {
		t.Errorf("surviving ping timestamp = %s, want %s", track[0].Timestamp, later)
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	cfg := testConfig()
	cfg.SessionIdleTimeout = 10 * time.Minute
	in := New(cfg)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in.SetNowFunc(fixedClock(base))
	if _, err := in.Ingest(ping("idle", 40.0, -74.0, 10, base)); err != nil {
		t.Fatalf("idle session: %v", err)
	}

	active := base.Add(8 * time.Minute)
	in.SetNowFunc(fixedClock(active))
	if _, err := in.Ingest(ping("active", 41.0, -73.0, 10, active)); err != nil {
		t.Fatalf("active session: %v", err)
	}

	dropped := in.Sweep(base.Add(11 * time.Minute))
	if len(dropped) != 1 {
		t.Errorf("Sweep dropped = %d sessions, want 1", len(dropped))
	}
	if track, ok := dropped["idle"]; !ok || len(track) != 1 {
		t.Errorf("dropped tracks = %v, want idle session with 1 ping", dropped)
	}
	if _, ok := in.Track("idle"); ok {
		t.Error("idle session should be gone")
	}
	if _, ok := in.Track("active"); !ok {
		t.Error("active session should survive")
	}
}

func TestTrackReturnsCopy(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	in := New(testConfig())
	in.SetNowFunc(fixedClock(now))

	if _, err := in.Ingest(ping("s1", 40.0, -74.0, 10, now)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	track, _ := in.Track("s1")
	track[0].Latitude = 99

	again, _ := in.Track("s1")
	if again[0].Latitude != 40.0 {
		t.Error("Track must return a copy, not internal state")
	}
}
