// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/geosentry/geosentry/internal/models"
)

// newTestClient builds a client that is never attached to a network
// connection. Hub logic only touches the send channel.
func newTestClient(hub *Hub, buffer int) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, buffer),
	}
}

func testAlert(id string) *models.Alert {
	return &models.Alert{
		ID:             id,
		SessionID:      "sess-1",
		UserID:         "user-1",
		RiskLevel:      models.RiskHigh,
		CompositeScore: 0.8,
		Latitude:       51.5,
		Longitude:      -0.12,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	client := newTestClient(hub, 16)
	hub.Register <- client

	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	hub.Unregister <- client
	waitFor(t, func() bool { return hub.GetClientCount() == 0 })

	// Unregister closes the send channel.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after unregister")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("RunWithContext error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()

	c1 := newTestClient(hub, 16)
	c2 := newTestClient(hub, 16)
	hub.Register <- c1
	hub.Register <- c2
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	hub.BroadcastAlert(testAlert("alert-1"))

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeAlert {
				t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeAlert)
			}
			payload, ok := msg.Data.(models.AlertPayload)
			if !ok {
				t.Fatalf("message data type = %T, want models.AlertPayload", msg.Data)
			}
			if payload.AlertID != "alert-1" {
				t.Fatalf("payload alert id = %q, want alert-1", payload.AlertID)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive broadcast", c.id)
		}
	}
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()

	// Zero-buffer client can never accept a message without a reader.
	slow := newTestClient(hub, 0)
	fast := newTestClient(hub, 16)
	hub.Register <- slow
	hub.Register <- fast
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	hub.BroadcastAlert(testAlert("alert-1"))

	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	select {
	case msg := <-fast.send:
		if msg.Type != MessageTypeAlert {
			t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeAlert)
		}
	case <-time.After(time.Second):
		t.Fatal("fast client did not receive broadcast")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c1 := newTestClient(hub, 16)
	c2 := newTestClient(hub, 16)
	hub.Register <- c1
	hub.Register <- c2
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("client count after shutdown = %d, want 0", got)
	}
	for _, c := range []*Client{c1, c2} {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Fatalf("client %d send channel not closed", c.id)
			}
		default:
			t.Fatalf("client %d send channel not closed", c.id)
		}
	}
}

func TestSinkDeliversToHub(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()

	client := newTestClient(hub, 16)
	hub.Register <- client
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	sink := NewSink(hub)
	if sink.Name() != "websocket" {
		t.Fatalf("sink name = %q, want websocket", sink.Name())
	}
	if err := sink.Deliver(context.Background(), testAlert("alert-7")); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	select {
	case msg := <-client.send:
		payload := msg.Data.(models.AlertPayload)
		if payload.AlertID != "alert-7" {
			t.Fatalf("payload alert id = %q, want alert-7", payload.AlertID)
		}
	case <-time.After(time.Second):
		t.Fatal("client did not receive delivered alert")
	}
}

func TestClientIDsMonotonic(t *testing.T) {
	hub := NewHub()
	a := newTestClient(hub, 1)
	b := newTestClient(hub, 1)
	if b.ID() <= a.ID() {
		t.Fatalf("client ids not monotonic: %d then %d", a.ID(), b.ID())
	}
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
