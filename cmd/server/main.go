// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package main is the entry point for the GeoSentry server.
//
// GeoSentry ingests location pings from active sessions and evaluates
// them in real time against geofences, fraud hotspots, and movement
// patterns, emitting deduplicated risk alerts over WebSocket, NATS
// JetStream, and webhooks.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file (Koanf v2)
//  2. Audit store: badger-backed alert history and archived tracks
//  3. Pipeline: ingestor, geofence evaluator, hotspot scorer, pattern
//     analyzer, risk aggregator, alert emitter
//  4. Alert sinks: WebSocket hub, audit store, NATS JetStream and
//     webhook notifier when enabled
//  5. HTTP server: REST API plus the /api/v1/ws alert feed
//
// Everything long-running goes under a suture supervisor tree with
// three layers (data, pipeline, api) so a crash loop in one layer backs
// off without restarting the others.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. Common settings:
//
//	GEOSENTRY_SERVER_PORT=8471
//	GEOSENTRY_STORE_PATH=/data/geosentry
//	GEOSENTRY_NATS_ENABLED=true
//	GEOSENTRY_NATS_EMBEDDED_SERVER=true
//	GEOSENTRY_WEBHOOK_ENABLED=true
//	GEOSENTRY_WEBHOOK_URL=https://ops.example.com/hooks/geosentry
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests under the configured
// shutdown timeout, flushes the alert queue, and closes the stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geosentry/geosentry/internal/alert"
	"github.com/geosentry/geosentry/internal/api"
	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/engine"
	"github.com/geosentry/geosentry/internal/geofence"
	"github.com/geosentry/geosentry/internal/hotspot"
	"github.com/geosentry/geosentry/internal/ingest"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/pattern"
	"github.com/geosentry/geosentry/internal/risk"
	"github.com/geosentry/geosentry/internal/store"
	"github.com/geosentry/geosentry/internal/stream"
	"github.com/geosentry/geosentry/internal/supervisor"
	"github.com/geosentry/geosentry/internal/supervisor/services"
	ws "github.com/geosentry/geosentry/internal/websocket"
)

// storeGCInterval is how often the badger value log is compacted.
const storeGCInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("webhook_enabled", cfg.Webhook.Enabled).
		Msg("Starting GeoSentry")

	audit, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer func() {
		if err := audit.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}()

	// Pipeline stages. All in-memory; the audit store only sees
	// emitted alerts and reaped tracks.
	fences := geofence.NewStore()
	hotspots := hotspot.NewStore()
	ingestor := ingest.New(cfg.Ingest)
	evaluator := geofence.NewEvaluator(fences, cfg.Geofence)
	adjuster := geofence.NewAdjuster(fences, cfg.Geofence)

	emitter, err := alert.NewEmitter(cfg.Alert)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create alert emitter")
	}

	eng := engine.New(cfg, engine.Deps{
		Ingestor:   ingestor,
		Fences:     fences,
		Evaluator:  evaluator,
		Hotspots:   hotspots,
		Scorer:     hotspot.NewScorer(hotspots, cfg.Hotspot),
		Analyzer:   pattern.NewAnalyzer(cfg.Pattern),
		Aggregator: risk.NewAggregator(cfg.Risk),
		Emitter:    emitter,
		Archive:    audit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility.
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	hub := ws.NewHub()

	// Alert sinks, in dispatch order: audit store first so history is
	// durable before fan-out, then the live feeds.
	sinks := []alert.Sink{store.NewSink(audit), ws.NewSink(hub)}

	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			embedded, err := stream.NewEmbeddedServer(cfg.NATS)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			natsURL = embedded.ClientURL()
			tree.AddDataService(services.NewNATSServerService(embedded, cfg.Server.ShutdownTimeout))
			logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
		}

		publisher, err := stream.NewPublisher(cfg.NATS, natsURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect alert publisher to NATS")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing NATS publisher")
			}
		}()
		sinks = append(sinks, publisher)
		logging.Info().Str("stream", cfg.NATS.StreamName).Msg("NATS alert publishing enabled")
	}

	if cfg.Webhook.Enabled {
		sinks = append(sinks, alert.NewWebhookNotifier(cfg.Webhook))
		logging.Info().Str("url", cfg.Webhook.URL).Msg("Webhook alert delivery enabled")
	}

	dispatcher := alert.NewDispatcher(emitter, sinks...)

	handler := api.NewHandler(cfg, eng, ingestor, fences, hotspots, audit, hub)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Data layer services.
	tree.AddDataService(services.NewTickerService("store-gc", storeGCInterval, func(ctx context.Context) error {
		audit.RunGC()
		return nil
	}))

	// Pipeline layer services.
	tree.AddPipelineService(services.NewEngineService(eng))
	tree.AddPipelineService(services.NewWebSocketHubService(hub))
	tree.AddPipelineService(services.NewDispatcherService(dispatcher))
	tree.AddPipelineService(services.NewTickerService("session-sweeper", cfg.Ingest.SweepInterval, func(ctx context.Context) error {
		eng.SweepOnce(ctx, time.Now())
		return nil
	}))
	tree.AddPipelineService(services.NewTickerService("geofence-autoadjust", cfg.Geofence.AutoAdjustInterval, func(ctx context.Context) error {
		adjuster.AdjustOnce(time.Now())
		return nil
	}))

	// API layer services.
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
