// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	json "github.com/goccy/go-json"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// Publisher sends alert payloads to JetStream. Each alert goes to the
// topic `<prefix>.<risk_level>` so consumers can subscribe per
// severity, and carries its alert ID as Nats-Msg-Id for broker-side
// deduplication.
type Publisher struct {
	publisher message.Publisher
	prefix    string

	mu     sync.Mutex
	closed bool
}

// NewPublisher connects a Watermill NATS publisher to the configured
// broker and provisions the alert stream.
func NewPublisher(cfg config.NATSConfig, url string) (*Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Error().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if err := ensureStream(cfg, url, natsOpts); err != nil {
		return nil, err
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		prefix:    cfg.TopicPrefix,
	}, nil
}

// ensureStream provisions the alert stream with a subject wildcard
// covering every risk level topic.
func ensureStream(cfg config.NATSConfig, url string, opts []natsgo.Option) error {
	nc, err := natsgo.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("connect for stream provisioning: %w", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.StreamInfo(cfg.StreamName)
	if err == nil {
		return nil
	}

	_, err = js.AddStream(&natsgo.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{cfg.TopicPrefix + ".>"},
		Storage:    natsgo.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("provision stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

// Name implements the dispatcher sink interface.
func (p *Publisher) Name() string { return "nats" }

// Deliver publishes one alert payload.
func (p *Publisher) Deliver(ctx context.Context, alert *models.Alert) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.Unlock()

	data, err := json.Marshal(alert.Payload())
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	msg := message.NewMessage(alert.ID, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, alert.ID)
	msg.Metadata.Set("risk_level", string(alert.RiskLevel))
	msg.Metadata.Set("session_id", alert.SessionID)

	topic := p.prefix + "." + string(alert.RiskLevel)
	if err := p.publisher.Publish(topic, msg); err != nil {
		metrics.NATSPublishErrors.Inc()
		return fmt.Errorf("publish alert to %s: %w", topic, err)
	}

	metrics.NATSMessagesPublished.Inc()
	return nil
}

// Close shuts the publisher down. Further Deliver calls fail fast.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
