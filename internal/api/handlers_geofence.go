// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geosentry/geosentry/internal/geofence"
	"github.com/geosentry/geosentry/internal/models"
)

// vertexDTO is a polygon vertex on the wire.
type vertexDTO struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// geofenceRequest is the create/update DTO. Shape-specific geometry
// rules (radius, vertex count) are enforced by the geofence store's
// boundary validation.
type geofenceRequest struct {
	Name           string      `json:"name" validate:"required"`
	Shape          string      `json:"shape" validate:"required,geofence_shape"`
	CenterLat      float64     `json:"center_lat"`
	CenterLon      float64     `json:"center_lon"`
	RadiusMeters   float64     `json:"radius_meters" validate:"gte=0"`
	Vertices       []vertexDTO `json:"vertices" validate:"dive"`
	BaseRiskLevel  string      `json:"base_risk_level" validate:"required,risk_level"`
	AlertThreshold int         `json:"alert_threshold" validate:"gte=1"`
	AutoAdjust     bool        `json:"auto_adjust"`
	Active         *bool       `json:"active"`
}

func (req *geofenceRequest) toModel() models.Geofence {
	f := models.Geofence{
		Name:           req.Name,
		Shape:          models.GeofenceShape(req.Shape),
		CenterLat:      req.CenterLat,
		CenterLon:      req.CenterLon,
		RadiusMeters:   req.RadiusMeters,
		BaseRiskLevel:  models.RiskLevel(req.BaseRiskLevel),
		AlertThreshold: req.AlertThreshold,
		AutoAdjust:     req.AutoAdjust,
		CreatedBy:      models.OriginManual,
		Active:         true,
	}
	if req.Active != nil {
		f.Active = *req.Active
	}
	for _, v := range req.Vertices {
		f.Vertices = append(f.Vertices, models.Vertex{Latitude: v.Latitude, Longitude: v.Longitude})
	}
	return f
}

// GeofenceList returns all geofences, active and inactive, sorted by ID.
func (h *Handler) GeofenceList(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, h.fences.List())
}

// GeofenceGet returns a single geofence by ID.
func (h *Handler) GeofenceGet(w http.ResponseWriter, r *http.Request) {
	f, err := h.fences.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "geofence not found", nil)
		return
	}
	respondOK(w, http.StatusOK, f)
}

// GeofenceCreate validates and stores a new geofence. The new fence is
// visible to evaluation as soon as the store publishes its snapshot.
func (h *Handler) GeofenceCreate(w http.ResponseWriter, r *http.Request) {
	var req geofenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	created, err := h.fences.Create(req.toModel())
	if err != nil {
		if errors.Is(err, geofence.ErrInvalidShape) {
			respondError(w, http.StatusBadRequest, "INVALID_SHAPE", err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to create geofence", err)
		return
	}
	respondOK(w, http.StatusCreated, created)
}

// GeofenceUpdate replaces a geofence's definition, preserving its
// incident history.
func (h *Handler) GeofenceUpdate(w http.ResponseWriter, r *http.Request) {
	var req geofenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	f := req.toModel()
	f.ID = chi.URLParam(r, "id")
	updated, err := h.fences.Update(f)
	if err != nil {
		switch {
		case errors.Is(err, geofence.ErrNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "geofence not found", nil)
		case errors.Is(err, geofence.ErrInvalidShape):
			respondError(w, http.StatusBadRequest, "INVALID_SHAPE", err.Error(), nil)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to update geofence", err)
		}
		return
	}
	respondOK(w, http.StatusOK, updated)
}

// GeofenceDelete removes a geofence entirely.
func (h *Handler) GeofenceDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.fences.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "geofence not found", nil)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GeofenceDeactivate takes a geofence out of evaluation without losing
// its history.
func (h *Handler) GeofenceDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.fences.Deactivate(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "geofence not found", nil)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
