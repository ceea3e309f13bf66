// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package stream

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/models"
)

func testNATSConfig(t *testing.T) config.NATSConfig {
	t.Helper()
	return config.NATSConfig{
		Enabled:        true,
		EmbeddedServer: true,
		EmbeddedPort:   server.RANDOM_PORT,
		StoreDir:       t.TempDir(),
		MaxMemory:      64 << 20,
		MaxStore:       256 << 20,
		MaxReconnects:  3,
		ReconnectWait:  100 * time.Millisecond,
		StreamName:     "ALERTS_TEST",
		TopicPrefix:    "alerts",
	}
}

func TestEmbeddedServerPublishRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded NATS server test skipped in short mode")
	}

	cfg := testNATSConfig(t)

	ns, err := NewEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ns.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	pub, err := NewPublisher(cfg, ns.ClientURL())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer pub.Close()

	// Subscribe directly so delivery is observable.
	nc, err := natsgo.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	received := make(chan *natsgo.Msg, 1)
	sub, err := js.Subscribe("alerts.high", func(m *natsgo.Msg) {
		received <- m
	}, natsgo.BindStream(cfg.StreamName))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	alert := &models.Alert{
		ID:             "alert-1",
		SessionID:      "s1",
		UserID:         "user-1",
		RiskLevel:      models.RiskHigh,
		CompositeScore: 0.3,
		Latitude:       40.7128,
		Longitude:      -74.0060,
		CreatedAt:      time.Now().UTC(),
	}

	if pub.Name() != "nats" {
		t.Errorf("Name() = %q, want nats", pub.Name())
	}
	if err := pub.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	select {
	case msg := <-received:
		if len(msg.Data) == 0 {
			t.Error("received empty payload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("alert not received on alerts.high")
	}
}

func TestPublisherClosedFailsFast(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded NATS server test skipped in short mode")
	}

	cfg := testNATSConfig(t)

	ns, err := NewEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ns.Shutdown(ctx)
	}()

	pub, err := NewPublisher(cfg, ns.ClientURL())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err = pub.Deliver(context.Background(), &models.Alert{ID: "x", RiskLevel: models.RiskLow})
	if err == nil {
		t.Error("Deliver() after Close should fail")
	}
}
