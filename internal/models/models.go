// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package models

import (
	"fmt"
	"time"
)

// RiskLevel is the severity tier assigned to geofences and alerts.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel converts a string to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// TierScore maps a risk level to its base signal score.
func (l RiskLevel) TierScore() float64 {
	switch l {
	case RiskLow:
		return 0.25
	case RiskMedium:
		return 0.5
	case RiskHigh:
		return 0.75
	case RiskCritical:
		return 1.0
	default:
		return 0
	}
}

// Escalate returns the next tier up, capped at critical.
func (l RiskLevel) Escalate() RiskLevel {
	switch l {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Rank returns an ordinal for level comparison (low=0 .. critical=3).
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// MaxRiskLevel returns the higher of two levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// LocationPing is a single accepted position report for a session.
// Pings are immutable once accepted.
type LocationPing struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	DeviceID       string    `json:"device_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Timestamp      time.Time `json:"timestamp"`
	TransactionID  string    `json:"transaction_id,omitempty"`
}

// GeofenceShape distinguishes circular from polygonal geofences.
type GeofenceShape string

const (
	ShapeCircle  GeofenceShape = "circle"
	ShapePolygon GeofenceShape = "polygon"
)

// GeofenceOrigin records how a geofence was created.
type GeofenceOrigin string

const (
	OriginSystem GeofenceOrigin = "system"
	OriginManual GeofenceOrigin = "manual"
)

// Vertex is a single polygon vertex.
type Vertex struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geofence is a bounded region with an associated baseline risk.
// Geofences are treated as immutable once published into a snapshot;
// updates replace the whole value through the store's writer path.
type Geofence struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Shape          GeofenceShape  `json:"shape"`
	CenterLat      float64        `json:"center_lat,omitempty"`
	CenterLon      float64        `json:"center_lon,omitempty"`
	RadiusMeters   float64        `json:"radius_meters,omitempty"`
	Vertices       []Vertex       `json:"vertices,omitempty"`
	BaseRiskLevel  RiskLevel      `json:"base_risk_level"`
	AlertThreshold int            `json:"alert_threshold"`
	IncidentCount  int            `json:"incident_count"`
	AutoAdjust     bool           `json:"auto_adjust"`
	CreatedBy      GeofenceOrigin `json:"created_by"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Centroid returns a representative point for the geofence. For circles
// this is the center; for polygons the vertex mean.
func (g *Geofence) Centroid() (lat, lon float64) {
	if g.Shape == ShapeCircle || len(g.Vertices) == 0 {
		return g.CenterLat, g.CenterLon
	}
	for _, v := range g.Vertices {
		lat += v.Latitude
		lon += v.Longitude
	}
	n := float64(len(g.Vertices))
	return lat / n, lon / n
}

// FraudHotspot is a point location with a decaying incident history.
// IncidentCount holds the decayed value as of LastDecayedAt; readers
// must re-decay to their own evaluation time.
type FraudHotspot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	IncidentCount    float64   `json:"incident_count"`
	LastIncidentTime time.Time `json:"last_incident_time"`
	LastDecayedAt    time.Time `json:"last_decayed_at"`
}

// SignalSource identifies which evaluator produced a risk signal.
type SignalSource string

const (
	SourceGeofence SignalSource = "geofence"
	SourceHotspot  SignalSource = "hotspot"
	SourcePattern  SignalSource = "pattern"
)

// RiskSignal is a single scored observation from one evaluator.
// Reasons are a correctness contract: downstream consumers display
// them verbatim, so every signal must carry at least one.
type RiskSignal struct {
	Source  SignalSource `json:"source"`
	Score   float64      `json:"score"`
	Reasons []string     `json:"reasons"`
}

// Alert is the published outcome of a risk assessment. Never mutated
// after creation.
type Alert struct {
	ID                  string    `json:"alert_id"`
	SessionID           string    `json:"session_id"`
	UserID              string    `json:"user_id"`
	RiskLevel           RiskLevel `json:"risk_level"`
	CompositeScore      float64   `json:"composite_score"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	ContributingFactors []string  `json:"contributing_factors"`
	SuggestedActionTags []string  `json:"suggested_action_tags"`
	CreatedAt           time.Time `json:"created_at"`
	DedupKey            string    `json:"dedup_key"`
}

// AlertLocation is the nested location object used on the wire.
type AlertLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AlertPayload is the alert stream wire format consumed by UI and
// notification collaborators.
type AlertPayload struct {
	AlertID             string        `json:"alert_id"`
	SessionID           string        `json:"session_id"`
	UserID              string        `json:"user_id"`
	RiskLevel           RiskLevel     `json:"risk_level"`
	CompositeScore      float64       `json:"composite_score"`
	Location            AlertLocation `json:"location"`
	ContributingFactors []string      `json:"contributing_factors"`
	SuggestedActionTags []string      `json:"suggested_action_tags"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Payload converts an Alert to its wire representation.
func (a *Alert) Payload() AlertPayload {
	return AlertPayload{
		AlertID:             a.ID,
		SessionID:           a.SessionID,
		UserID:              a.UserID,
		RiskLevel:           a.RiskLevel,
		CompositeScore:      a.CompositeScore,
		Location:            AlertLocation{Lat: a.Latitude, Lng: a.Longitude},
		ContributingFactors: a.ContributingFactors,
		SuggestedActionTags: a.SuggestedActionTags,
		CreatedAt:           a.CreatedAt,
	}
}

// APIResponse is the standard JSON envelope for API responses.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Error  *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code alongside the message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
