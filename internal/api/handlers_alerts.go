// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geosentry/geosentry/internal/store"
)

// AlertList returns recent alerts, newest first, optionally filtered by
// session via the session_id query parameter.
func (h *Handler) AlertList(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "alert store not configured", nil)
		return
	}

	limit, offset := h.pagination(r)
	sessionID := r.URL.Query().Get("session_id")

	alerts, err := h.audit.ListAlerts(r.Context(), sessionID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list alerts", err)
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"limit":  limit,
		"offset": offset,
		"alerts": alerts,
	})
}

// AlertGet returns one alert by ID.
func (h *Handler) AlertGet(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "alert store not configured", nil)
		return
	}

	alert, err := h.audit.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "alert not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to read alert", err)
		return
	}
	respondOK(w, http.StatusOK, alert)
}
