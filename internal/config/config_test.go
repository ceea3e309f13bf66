// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Server defaults
	if cfg.Server.Port != 8471 {
		t.Errorf("Server.Port = %d, want 8471", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}

	// Ingest defaults
	if cfg.Ingest.MaxAccuracyMeters != 100 {
		t.Errorf("Ingest.MaxAccuracyMeters = %v, want 100", cfg.Ingest.MaxAccuracyMeters)
	}
	if cfg.Ingest.TrackMaxAge != 60*time.Minute {
		t.Errorf("Ingest.TrackMaxAge = %v, want 60m", cfg.Ingest.TrackMaxAge)
	}
	if cfg.Ingest.TrackMaxCount != 200 {
		t.Errorf("Ingest.TrackMaxCount = %d, want 200", cfg.Ingest.TrackMaxCount)
	}

	// Geofence defaults
	if cfg.Geofence.DwellScoreFactor != 0.5 {
		t.Errorf("Geofence.DwellScoreFactor = %v, want 0.5", cfg.Geofence.DwellScoreFactor)
	}

	// Hotspot defaults
	if cfg.Hotspot.ProximityRadiusMeters != 200 {
		t.Errorf("Hotspot.ProximityRadiusMeters = %v, want 200", cfg.Hotspot.ProximityRadiusMeters)
	}
	if cfg.Hotspot.IncidentHalfLife != 24*time.Hour {
		t.Errorf("Hotspot.IncidentHalfLife = %v, want 24h", cfg.Hotspot.IncidentHalfLife)
	}
	if cfg.Hotspot.NightMultiplier != 1.5 {
		t.Errorf("Hotspot.NightMultiplier = %v, want 1.5", cfg.Hotspot.NightMultiplier)
	}

	// Pattern defaults
	if cfg.Pattern.MaxSpeedKmH != 150 {
		t.Errorf("Pattern.MaxSpeedKmH = %v, want 150", cfg.Pattern.MaxSpeedKmH)
	}
	if cfg.Pattern.CircularityRatio != 0.2 {
		t.Errorf("Pattern.CircularityRatio = %v, want 0.2", cfg.Pattern.CircularityRatio)
	}
	if cfg.Pattern.LoiterDwell != 20*time.Minute {
		t.Errorf("Pattern.LoiterDwell = %v, want 20m", cfg.Pattern.LoiterDwell)
	}

	// Risk defaults
	if cfg.Risk.GeofenceWeight != 0.4 {
		t.Errorf("Risk.GeofenceWeight = %v, want 0.4", cfg.Risk.GeofenceWeight)
	}
	if cfg.Risk.CriticalThreshold != 0.85 {
		t.Errorf("Risk.CriticalThreshold = %v, want 0.85", cfg.Risk.CriticalThreshold)
	}

	// Alert defaults
	if cfg.Alert.DedupWindow != 5*time.Minute {
		t.Errorf("Alert.DedupWindow = %v, want 5m", cfg.Alert.DedupWindow)
	}
	if cfg.Alert.QueueSize != 1024 {
		t.Errorf("Alert.QueueSize = %d, want 1024", cfg.Alert.QueueSize)
	}

	// NATS defaults (disabled, embedded when on)
	if cfg.NATS.Enabled != false {
		t.Errorf("NATS.Enabled should be false by default")
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("NATS.URL = %q, want nats://127.0.0.1:4222", cfg.NATS.URL)
	}
	if cfg.NATS.MaxMemory != 1<<30 {
		t.Errorf("NATS.MaxMemory = %d, want 1GB", cfg.NATS.MaxMemory)
	}

	// Store defaults
	if cfg.Store.Path != "/data/geosentry" {
		t.Errorf("Store.Path = %q, want /data/geosentry", cfg.Store.Path)
	}

	// API defaults
	if cfg.API.DefaultPageSize != 20 {
		t.Errorf("API.DefaultPageSize = %d, want 20", cfg.API.DefaultPageSize)
	}
	if cfg.API.MaxPageSize != 100 {
		t.Errorf("API.MaxPageSize = %d, want 100", cfg.API.MaxPageSize)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "*" {
		t.Errorf("API.CORSOrigins = %v, want [*]", cfg.API.CORSOrigins)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Server
		{"HTTP_PORT", "server.port"},
		{"HTTP_HOST", "server.host"},
		{"HTTP_TIMEOUT", "server.timeout"},

		// Logging
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},

		// Ingest
		{"INGEST_MAX_ACCURACY_METERS", "ingest.max_accuracy_meters"},
		{"INGEST_TRACK_MAX_COUNT", "ingest.track_max_count"},

		// Geofence
		{"GEOFENCE_DWELL_SCORE_FACTOR", "geofence.dwell_score_factor"},

		// Hotspot
		{"HOTSPOT_INCIDENT_HALF_LIFE", "hotspot.incident_half_life"},
		{"HOTSPOT_NIGHT_MULTIPLIER", "hotspot.night_multiplier"},

		// Pattern
		{"PATTERN_MAX_SPEED_KMH", "pattern.max_speed_kmh"},
		{"PATTERN_LOITER_DWELL", "pattern.loiter_dwell"},

		// Risk
		{"RISK_GEOFENCE_WEIGHT", "risk.geofence_weight"},
		{"RISK_HIGH_THRESHOLD", "risk.high_threshold"},

		// Alert
		{"ALERT_DEDUP_WINDOW", "alert.dedup_window"},
		{"ALERT_MIN_LEVEL", "alert.min_level"},

		// NATS
		{"NATS_ENABLED", "nats.enabled"},
		{"NATS_URL", "nats.url"},
		{"NATS_EMBEDDED", "nats.embedded_server"},

		// Store
		{"STORE_PATH", "store.path"},
		{"STORE_IN_MEMORY", "store.in_memory"},

		// Webhook
		{"WEBHOOK_URL", "webhook.url"},
		{"WEBHOOK_BREAKER_THRESHOLD", "webhook.breaker_threshold"},

		// API
		{"CORS_ORIGINS", "api.cors_origins"},
		{"RATE_LIMIT_REQUESTS", "api.rate_limit_requests"},
		{"DISABLE_RATE_LIMIT", "api.rate_limit_disabled"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := envTransformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestFindConfigFile verifies config file discovery
func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("Failed to restore working directory: %v", err)
		}
	}()

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}

	t.Run("no config file exists", func(t *testing.T) {
		os.Unsetenv(ConfigPathEnvVar)
		result := findConfigFile()
		if result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("config.yaml exists", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0644); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(configPath)

		os.Unsetenv(ConfigPathEnvVar)
		result := findConfigFile()
		if result != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", result)
		}
	})

	t.Run("CONFIG_PATH env var takes precedence", func(t *testing.T) {
		customPath := filepath.Join(tmpDir, "custom_config.yaml")
		if err := os.WriteFile(customPath, []byte("logging:\n  level: debug\n"), 0644); err != nil {
			t.Fatalf("Failed to create custom config file: %v", err)
		}
		defer os.Remove(customPath)

		os.Setenv(ConfigPathEnvVar, customPath)
		defer os.Unsetenv(ConfigPathEnvVar)

		result := findConfigFile()
		if result != customPath {
			t.Errorf("findConfigFile() = %q, want %q", result, customPath)
		}
	})

	t.Run("CONFIG_PATH env var with non-existent file", func(t *testing.T) {
		os.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
		defer os.Unsetenv(ConfigPathEnvVar)

		result := findConfigFile()
		if result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})
}

// TestLoadWithEnvVars tests loading configuration from environment variables
func TestLoadWithEnvVars(t *testing.T) {
	os.Clearenv()

	os.Setenv("HTTP_PORT", "9000")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("PATTERN_MAX_SPEED_KMH", "180")
	os.Setenv("ALERT_MIN_LEVEL", "medium")
	os.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Pattern.MaxSpeedKmH != 180 {
		t.Errorf("Pattern.MaxSpeedKmH = %v, want 180", cfg.Pattern.MaxSpeedKmH)
	}
	if cfg.Alert.MinLevel != "medium" {
		t.Errorf("Alert.MinLevel = %q, want medium", cfg.Alert.MinLevel)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[0] != "https://a.example.com" {
		t.Errorf("API.CORSOrigins = %v, want two trimmed origins", cfg.API.CORSOrigins)
	}

	// Defaults survive the env layer
	if cfg.Ingest.TrackMaxCount != 200 {
		t.Errorf("Ingest.TrackMaxCount = %d, want 200", cfg.Ingest.TrackMaxCount)
	}
}

// TestValidate exercises configuration validation failures
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero accuracy ceiling",
			mutate:  func(c *Config) { c.Ingest.MaxAccuracyMeters = 0 },
			wantErr: true,
		},
		{
			name:    "dwell factor above one",
			mutate:  func(c *Config) { c.Geofence.DwellScoreFactor = 1.5 },
			wantErr: true,
		},
		{
			name:    "weights do not sum to one",
			mutate:  func(c *Config) { c.Risk.GeofenceWeight = 0.5 },
			wantErr: true,
		},
		{
			name: "thresholds not increasing",
			mutate: func(c *Config) {
				c.Risk.MediumThreshold = 0.7
				c.Risk.HighThreshold = 0.65
			},
			wantErr: true,
		},
		{
			name:    "bad min alert level",
			mutate:  func(c *Config) { c.Alert.MinLevel = "severe" },
			wantErr: true,
		},
		{
			name: "webhook enabled without URL",
			mutate: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.URL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
