// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package config provides layered configuration loading via koanf:
// struct defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the root configuration for the GeoSentry server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Geofence GeofenceConfig `koanf:"geofence"`
	Hotspot  HotspotConfig  `koanf:"hotspot"`
	Pattern  PatternConfig  `koanf:"pattern"`
	Risk     RiskConfig     `koanf:"risk"`
	Alert    AlertConfig    `koanf:"alert"`
	NATS     NATSConfig     `koanf:"nats"`
	Store    StoreConfig    `koanf:"store"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	API      APIConfig      `koanf:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IngestConfig bounds per-session track buffers and ping validation.
type IngestConfig struct {
	// MaxAccuracyMeters rejects pings whose reported accuracy exceeds
	// this ceiling.
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters"`

	// TrackMaxAge is the sliding retention window for track entries.
	TrackMaxAge time.Duration `koanf:"track_max_age"`

	// TrackMaxCount caps the number of pings kept per session.
	TrackMaxCount int `koanf:"track_max_count"`

	// SessionIdleTimeout is how long a session may go without pings
	// before its track is reaped.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`

	// SweepInterval is how often idle sessions are reaped.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// MailboxSize bounds each session worker's inbound queue.
	MailboxSize int `koanf:"mailbox_size"`
}

// GeofenceConfig controls evaluation and auto-adjustment.
type GeofenceConfig struct {
	// DwellScoreFactor scales the tier score while a session remains
	// inside a geofence without freshly entering it.
	DwellScoreFactor float64 `koanf:"dwell_score_factor"`

	// AutoAdjustInterval is how often auto-adjusting geofences are
	// recomputed.
	AutoAdjustInterval time.Duration `koanf:"auto_adjust_interval"`

	// AutoAdjustDecayWindow is the lookback over which breach density
	// is measured.
	AutoAdjustDecayWindow time.Duration `koanf:"auto_adjust_decay_window"`

	// AutoAdjustBreachThreshold is the decayed breach count above which
	// a geofence escalates one risk tier.
	AutoAdjustBreachThreshold int `koanf:"auto_adjust_breach_threshold"`

	// MaxRadiusMeters caps radius growth for auto-adjusting circles.
	MaxRadiusMeters float64 `koanf:"max_radius_meters"`

	// RadiusGrowthFactor multiplies the radius on each escalating
	// recompute, capped at MaxRadiusMeters.
	RadiusGrowthFactor float64 `koanf:"radius_growth_factor"`
}

// HotspotConfig controls proximity scoring.
type HotspotConfig struct {
	// ProximityRadiusMeters is the distance at which hotspot influence
	// reaches zero.
	ProximityRadiusMeters float64 `koanf:"proximity_radius_meters"`

	// IncidentHalfLife is the exponential decay half-life for incident
	// counts.
	IncidentHalfLife time.Duration `koanf:"incident_half_life"`

	// IncidentSaturation is the decayed count at which the incident
	// factor saturates at 1.0.
	IncidentSaturation float64 `koanf:"incident_saturation"`

	// NightMultiplier scales scores between NightStartHour and
	// NightEndHour.
	NightMultiplier float64 `koanf:"night_multiplier"`
	NightStartHour  int     `koanf:"night_start_hour"`
	NightEndHour    int     `koanf:"night_end_hour"`

	// ScoreFloor suppresses signals below this score to avoid noise.
	ScoreFloor float64 `koanf:"score_floor"`
}

// PatternConfig holds anomaly heuristic thresholds. The defaults are
// design choices, not derived constants; they are exposed here so
// operators can tune them.
type PatternConfig struct {
	MinTrackPings int `koanf:"min_track_pings"`

	// MaxSpeedKmH is the impossible-travel speed ceiling.
	MaxSpeedKmH float64 `koanf:"max_speed_kmh"`

	// CircularityRatio flags casing when displacement/path falls below
	// this value over at least MinPathMeters of movement.
	CircularityRatio float64 `koanf:"circularity_ratio"`
	MinPathMeters    float64 `koanf:"min_path_meters"`

	// LoiterRadiusMeters and LoiterDwell control loitering detection
	// near sensitive locations.
	LoiterRadiusMeters float64       `koanf:"loiter_radius_meters"`
	LoiterDwell        time.Duration `koanf:"loiter_dwell"`
}

// RiskConfig holds aggregation weights and level thresholds.
// Weights must sum to 1.0; absent sources contribute zero and the
// remaining weights are never renormalized.
type RiskConfig struct {
	GeofenceWeight float64 `koanf:"geofence_weight"`
	HotspotWeight  float64 `koanf:"hotspot_weight"`
	PatternWeight  float64 `koanf:"pattern_weight"`

	CriticalThreshold float64 `koanf:"critical_threshold"`
	HighThreshold     float64 `koanf:"high_threshold"`
	MediumThreshold   float64 `koanf:"medium_threshold"`
}

// AlertConfig controls deduplication and the outbound queue.
type AlertConfig struct {
	// DedupWindow is the time bucket used for dedup keys; identical
	// breach conditions inside one bucket emit a single alert.
	DedupWindow time.Duration `koanf:"dedup_window"`

	// QueueSize bounds the outbound alert queue. When full, the oldest
	// alert is dropped rather than blocking ingestion.
	QueueSize int `koanf:"queue_size"`

	// MinLevel suppresses alerts below this risk level.
	MinLevel string `koanf:"min_level"`
}

// NATSConfig controls the alert stream transport.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	StreamName     string        `koanf:"stream_name"`
	TopicPrefix    string        `koanf:"topic_prefix"`
}

// StoreConfig controls the badger-backed audit store.
type StoreConfig struct {
	Path           string        `koanf:"path"`
	AlertRetention time.Duration `koanf:"alert_retention"`
	InMemory       bool          `koanf:"in_memory"`
}

// WebhookConfig controls outbound alert webhooks.
type WebhookConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	Timeout          time.Duration `koanf:"timeout"`
	RatePerSecond    float64       `koanf:"rate_per_second"`
	RateBurst        int           `koanf:"rate_burst"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// APIConfig holds API boundary settings.
type APIConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
}

// defaultConfig returns a Config with all default values. These are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8471,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Ingest: IngestConfig{
			MaxAccuracyMeters:  100,
			TrackMaxAge:        60 * time.Minute,
			TrackMaxCount:      200,
			SessionIdleTimeout: 30 * time.Minute,
			SweepInterval:      time.Minute,
			MailboxSize:        64,
		},
		Geofence: GeofenceConfig{
			DwellScoreFactor:          0.5,
			AutoAdjustInterval:        5 * time.Minute,
			AutoAdjustDecayWindow:     time.Hour,
			AutoAdjustBreachThreshold: 5,
			MaxRadiusMeters:           2000,
			RadiusGrowthFactor:        1.25,
		},
		Hotspot: HotspotConfig{
			ProximityRadiusMeters: 200,
			IncidentHalfLife:      24 * time.Hour,
			IncidentSaturation:    10,
			NightMultiplier:       1.5,
			NightStartHour:        22,
			NightEndHour:          5,
			ScoreFloor:            0.1,
		},
		Pattern: PatternConfig{
			MinTrackPings:      3,
			MaxSpeedKmH:        150,
			CircularityRatio:   0.2,
			MinPathMeters:      300,
			LoiterRadiusMeters: 50,
			LoiterDwell:        20 * time.Minute,
		},
		Risk: RiskConfig{
			GeofenceWeight:    0.4,
			HotspotWeight:     0.3,
			PatternWeight:     0.3,
			CriticalThreshold: 0.85,
			HighThreshold:     0.65,
			MediumThreshold:   0.4,
		},
		Alert: AlertConfig{
			DedupWindow: 5 * time.Minute,
			QueueSize:   1024,
			MinLevel:    "low",
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			EmbeddedPort:   4222,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,
			MaxStore:       4 << 30,
			MaxReconnects:  10,
			ReconnectWait:  2 * time.Second,
			StreamName:     "ALERTS",
			TopicPrefix:    "alerts",
		},
		Store: StoreConfig{
			Path:           "/data/geosentry",
			AlertRetention: 30 * 24 * time.Hour,
			InMemory:       false,
		},
		Webhook: WebhookConfig{
			Enabled:          false,
			URL:              "",
			Timeout:          10 * time.Second,
			RatePerSecond:    2,
			RateBurst:        5,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		API: APIConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			DefaultPageSize:   20,
			MaxPageSize:       100,
		},
	}
}

// Validate checks the configuration for consistency. It is called by
// Load after all layers are merged; invalid configuration never reaches
// the running pipeline.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Ingest.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("ingest.max_accuracy_meters must be positive")
	}
	if c.Ingest.TrackMaxAge <= 0 || c.Ingest.TrackMaxCount <= 0 {
		return fmt.Errorf("ingest track bounds must be positive")
	}
	if c.Ingest.MailboxSize <= 0 {
		return fmt.Errorf("ingest.mailbox_size must be positive")
	}
	if c.Geofence.DwellScoreFactor < 0 || c.Geofence.DwellScoreFactor > 1 {
		return fmt.Errorf("geofence.dwell_score_factor must be in [0, 1]")
	}
	if c.Geofence.MaxRadiusMeters <= 0 {
		return fmt.Errorf("geofence.max_radius_meters must be positive")
	}
	if c.Hotspot.ProximityRadiusMeters <= 0 {
		return fmt.Errorf("hotspot.proximity_radius_meters must be positive")
	}
	if c.Hotspot.IncidentHalfLife <= 0 {
		return fmt.Errorf("hotspot.incident_half_life must be positive")
	}
	if c.Pattern.MaxSpeedKmH <= 0 {
		return fmt.Errorf("pattern.max_speed_kmh must be positive")
	}
	if c.Pattern.CircularityRatio <= 0 || c.Pattern.CircularityRatio >= 1 {
		return fmt.Errorf("pattern.circularity_ratio must be in (0, 1)")
	}
	if c.Pattern.MinTrackPings < 2 {
		return fmt.Errorf("pattern.min_track_pings must be at least 2")
	}

	weightSum := c.Risk.GeofenceWeight + c.Risk.HotspotWeight + c.Risk.PatternWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1.0, got %v", weightSum)
	}
	if !(c.Risk.MediumThreshold < c.Risk.HighThreshold && c.Risk.HighThreshold < c.Risk.CriticalThreshold) {
		return fmt.Errorf("risk level thresholds must be strictly increasing")
	}

	if c.Alert.DedupWindow <= 0 {
		return fmt.Errorf("alert.dedup_window must be positive")
	}
	if c.Alert.QueueSize <= 0 {
		return fmt.Errorf("alert.queue_size must be positive")
	}
	switch c.Alert.MinLevel {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("alert.min_level %q invalid", c.Alert.MinLevel)
	}

	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url required when webhook.enabled")
	}

	return nil
}
