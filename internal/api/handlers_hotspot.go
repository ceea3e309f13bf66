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

	"github.com/geosentry/geosentry/internal/hotspot"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// hotspotRequest is the hotspot creation DTO.
type hotspotRequest struct {
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude" validate:"latitude"`
	Longitude     float64 `json:"longitude" validate:"longitude"`
	IncidentCount float64 `json:"incident_count" validate:"gte=0"`
}

// incidentRequest feeds a confirmed fraud incident into a hotspot's
// decayed count.
type incidentRequest struct {
	HotspotID string    `json:"hotspot_id" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

// HotspotList returns all hotspots with their decayed counts as of the
// last write.
func (h *Handler) HotspotList(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, h.hotspots.List())
}

// HotspotGet returns one hotspot by ID.
func (h *Handler) HotspotGet(w http.ResponseWriter, r *http.Request) {
	spot, err := h.hotspots.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "hotspot not found", nil)
		return
	}
	respondOK(w, http.StatusOK, spot)
}

// HotspotCreate registers a new hotspot.
func (h *Handler) HotspotCreate(w http.ResponseWriter, r *http.Request) {
	var req hotspotRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	created, err := h.hotspots.Create(models.FraudHotspot{
		Name:          req.Name,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		IncidentCount: req.IncidentCount,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	respondOK(w, http.StatusCreated, created)
}

// HotspotDelete removes a hotspot.
func (h *Handler) HotspotDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.hotspots.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "hotspot not found", nil)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HotspotIncident records a confirmed incident against a hotspot,
// decaying the existing count to the incident time before adding one.
func (h *Handler) HotspotIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	at := req.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	updated, err := h.hotspots.RecordIncident(req.HotspotID, at, h.cfg.Hotspot.IncidentHalfLife)
	if err != nil {
		if errors.Is(err, hotspot.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "hotspot not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to record incident", err)
		return
	}

	metrics.HotspotIncidents.Inc()
	respondOK(w, http.StatusOK, updated)
}
