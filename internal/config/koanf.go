// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/geosentry/config.yaml",
	"/etc/geosentry/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The merged result is validated before being returned; an invalid
// configuration never reaches the pipeline.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Env names map to koanf paths through an explicit table so random
	// environment variables never pollute the config.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults).
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - PATTERN_MAX_SPEED_KMH -> pattern.max_speed_kmh
//   - ALERT_DEDUP_WINDOW -> alert.dedup_window
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_timeout":          "server.timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Ingest
		"ingest_max_accuracy_meters":  "ingest.max_accuracy_meters",
		"ingest_track_max_age":        "ingest.track_max_age",
		"ingest_track_max_count":      "ingest.track_max_count",
		"ingest_session_idle_timeout": "ingest.session_idle_timeout",
		"ingest_sweep_interval":       "ingest.sweep_interval",
		"ingest_mailbox_size":         "ingest.mailbox_size",

		// Geofence
		"geofence_dwell_score_factor":   "geofence.dwell_score_factor",
		"geofence_auto_adjust_interval": "geofence.auto_adjust_interval",
		"geofence_auto_adjust_window":   "geofence.auto_adjust_decay_window",
		"geofence_auto_adjust_breaches": "geofence.auto_adjust_breach_threshold",
		"geofence_max_radius_meters":    "geofence.max_radius_meters",
		"geofence_radius_growth_factor": "geofence.radius_growth_factor",

		// Hotspot
		"hotspot_proximity_radius_meters": "hotspot.proximity_radius_meters",
		"hotspot_incident_half_life":      "hotspot.incident_half_life",
		"hotspot_incident_saturation":     "hotspot.incident_saturation",
		"hotspot_night_multiplier":        "hotspot.night_multiplier",
		"hotspot_night_start_hour":        "hotspot.night_start_hour",
		"hotspot_night_end_hour":          "hotspot.night_end_hour",
		"hotspot_score_floor":             "hotspot.score_floor",

		// Pattern
		"pattern_min_track_pings":      "pattern.min_track_pings",
		"pattern_max_speed_kmh":        "pattern.max_speed_kmh",
		"pattern_circularity_ratio":    "pattern.circularity_ratio",
		"pattern_min_path_meters":      "pattern.min_path_meters",
		"pattern_loiter_radius_meters": "pattern.loiter_radius_meters",
		"pattern_loiter_dwell":         "pattern.loiter_dwell",

		// Risk
		"risk_geofence_weight":    "risk.geofence_weight",
		"risk_hotspot_weight":     "risk.hotspot_weight",
		"risk_pattern_weight":     "risk.pattern_weight",
		"risk_critical_threshold": "risk.critical_threshold",
		"risk_high_threshold":     "risk.high_threshold",
		"risk_medium_threshold":   "risk.medium_threshold",

		// Alert
		"alert_dedup_window": "alert.dedup_window",
		"alert_queue_size":   "alert.queue_size",
		"alert_min_level":    "alert.min_level",

		// NATS
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_max_reconnects": "nats.max_reconnects",
		"nats_reconnect_wait": "nats.reconnect_wait",
		"nats_stream_name":    "nats.stream_name",
		"nats_topic_prefix":   "nats.topic_prefix",

		// Store
		"store_path":            "store.path",
		"store_alert_retention": "store.alert_retention",
		"store_in_memory":       "store.in_memory",

		// Webhook
		"webhook_enabled":           "webhook.enabled",
		"webhook_url":               "webhook.url",
		"webhook_timeout":           "webhook.timeout",
		"webhook_rate_per_second":   "webhook.rate_per_second",
		"webhook_rate_burst":        "webhook.rate_burst",
		"webhook_breaker_threshold": "webhook.breaker_threshold",
		"webhook_breaker_timeout":   "webhook.breaker_timeout",

		// API
		"cors_origins":          "api.cors_origins",
		"rate_limit_requests":   "api.rate_limit_requests",
		"rate_limit_window":     "api.rate_limit_window",
		"disable_rate_limit":    "api.rate_limit_disabled",
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped.
	return ""
}
