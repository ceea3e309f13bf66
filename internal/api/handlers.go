// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/engine"
	"github.com/geosentry/geosentry/internal/geofence"
	"github.com/geosentry/geosentry/internal/hotspot"
	"github.com/geosentry/geosentry/internal/ingest"
	"github.com/geosentry/geosentry/internal/models"
	"github.com/geosentry/geosentry/internal/store"
	"github.com/geosentry/geosentry/internal/websocket"
)

// Handler carries the dependencies for all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	engine   *engine.Engine
	ingestor *ingest.Ingestor
	fences   *geofence.Store
	hotspots *hotspot.Store
	audit    *store.Store
	hub      *websocket.Hub
}

// NewHandler creates the handler set. audit and hub may be nil when the
// corresponding subsystems are disabled.
func NewHandler(cfg *config.Config, eng *engine.Engine, ingestor *ingest.Ingestor,
	fences *geofence.Store, hotspots *hotspot.Store, audit *store.Store, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:      cfg,
		engine:   eng,
		ingestor: ingestor,
		fences:   fences,
		hotspots: hotspots,
		audit:    audit,
		hub:      hub,
	}
}

// pingRequest is the ping submission DTO. Coordinate range is checked by
// the ingestion gates so out-of-range values surface as a typed
// rejection rather than a validation error.
type pingRequest struct {
	SessionID      string    `json:"session_id" validate:"required"`
	UserID         string    `json:"user_id" validate:"required"`
	DeviceID       string    `json:"device_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
	TransactionID  string    `json:"transaction_id"`
}

// pingResponse reports the pipeline outcome for one submitted ping.
type pingResponse struct {
	Accepted            bool             `json:"accepted"`
	RejectionReason     string           `json:"rejection_reason,omitempty"`
	RejectionDetail     string           `json:"rejection_detail,omitempty"`
	CompositeScore      float64          `json:"composite_score"`
	RiskLevel           models.RiskLevel `json:"risk_level,omitempty"`
	ContributingFactors []string         `json:"contributing_factors,omitempty"`
	AlertID             string           `json:"alert_id,omitempty"`
}

// SubmitPing runs one location ping through the full pipeline and
// returns the assessment. Backpressure on the session mailbox maps to
// 503 rather than blocking.
func (h *Handler) SubmitPing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	ping := models.LocationPing{
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		DeviceID:       req.DeviceID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		Timestamp:      req.Timestamp,
		TransactionID:  req.TransactionID,
	}

	result, err := h.engine.ProcessPing(r.Context(), ping)
	switch {
	case errors.Is(err, engine.ErrMailboxFull):
		respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "session queue full, retry later", nil)
		return
	case errors.Is(err, engine.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server shutting down", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "INTERNAL", "ping processing failed", err)
		return
	}

	resp := pingResponse{
		Accepted:        result.Accepted,
		RejectionReason: string(result.RejectionReason),
		RejectionDetail: result.RejectionDetail,
	}
	if result.Accepted {
		resp.CompositeScore = result.Assessment.CompositeScore
		resp.RiskLevel = result.Assessment.Level
		resp.ContributingFactors = result.Assessment.Factors
		if result.Alert != nil {
			resp.AlertID = result.Alert.ID
		}
	}

	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	respondOK(w, status, resp)
}

// SessionTrack returns the session's current track, falling back to the
// archived track for reaped sessions.
func (h *Handler) SessionTrack(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	track, ok := h.ingestor.Track(sessionID)
	if !ok && h.audit != nil {
		archived, err := h.audit.GetArchivedTrack(r.Context(), sessionID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to read archived track", err)
			return
		}
		track, ok = archived, len(archived) > 0
	}
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"count":      len(track),
		"pings":      track,
	})
}

// SessionRisk summarises the current risk picture for a session from
// its live track without mutating pipeline state.
func (h *Handler) SessionRisk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	assessment, ok := h.engine.AssessTrack(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"session_id":           sessionID,
		"composite_score":      assessment.CompositeScore,
		"risk_level":           assessment.Level,
		"contributing_factors": assessment.Factors,
		"signals":              assessment.Signals,
	})
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe. The server is ready once the
// pipeline and, when enabled, the audit store are wired.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "engine not initialized", nil)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Health reports a summary of pipeline state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":          "ok",
		"active_sessions": h.ingestor.SessionCount(),
		"session_workers": h.engine.WorkerCount(),
		"geofences":       len(h.fences.Snapshot()),
		"hotspots":        len(h.hotspots.Snapshot()),
	}
	if h.hub != nil {
		data["websocket_clients"] = h.hub.GetClientCount()
	}
	respondOK(w, http.StatusOK, data)
}

// WebSocket upgrades the connection and subscribes the client to the
// alert broadcast.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "websocket hub not running", nil)
		return
	}
	websocket.ServeWS(h.hub, w, r)
}
