// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geosentry/geosentry/internal/middleware"
)

// Router assembles the chi route tree from the handler set.
type Router struct {
	handler *Handler
	chiMw   *ChiMiddleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler) *Router {
	return &Router{
		handler: handler,
		chiMw:   NewChiMiddleware(handler.cfg.API),
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS must be
	// global to handle OPTIONS preflight.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMw.CORS())

	// Health endpoints get permissive rate limiting so monitoring can
	// probe frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMw.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Core pipeline endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.Post("/pings", router.handler.SubmitPing)
		r.Get("/ws", router.handler.WebSocket)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/track", router.handler.SessionTrack)
			r.Get("/risk", router.handler.SessionRisk)
		})

		r.Route("/geofences", func(r chi.Router) {
			r.Get("/", router.handler.GeofenceList)
			r.Post("/", router.handler.GeofenceCreate)
			r.Get("/{id}", router.handler.GeofenceGet)
			r.Put("/{id}", router.handler.GeofenceUpdate)
			r.Delete("/{id}", router.handler.GeofenceDelete)
			r.Post("/{id}/deactivate", router.handler.GeofenceDeactivate)
		})

		r.Route("/hotspots", func(r chi.Router) {
			r.Get("/", router.handler.HotspotList)
			r.Post("/", router.handler.HotspotCreate)
			r.Post("/incidents", router.handler.HotspotIncident)
			r.Get("/{id}", router.handler.HotspotGet)
			r.Delete("/{id}", router.handler.HotspotDelete)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", router.handler.AlertList)
			r.Get("/{id}", router.handler.AlertGet)
		})
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
