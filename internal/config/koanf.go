// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"tracksync.yaml",
	"tracksync.yml",
	"/etc/tracksync/config.yaml",
	"/etc/tracksync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:   "http://127.0.0.1:8080",
			Timeout:   30 * time.Second,
			UserAgent: "tracksync/1",
			RateLimit: 5,
			Burst:     10,
			Breaker: BreakerConfig{
				Enabled:             true,
				MaxRequests:         3,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Store: StoreConfig{
			Path:       "/data/tracksync",
			SyncWrites: true,
		},
		Sampling: SamplingConfig{
			Debounce:          4 * time.Second,
			GPSGrace:          30 * time.Second,
			AccuracyThreshold: 100,
		},
		Sync: SyncConfig{
			Interval:             15 * time.Minute,
			MaxBatch:             100,
			PageSize:             500,
			BootstrapDays:        7,
			WindowDays:           7,
			EmptyWindowThreshold: 12,
			RetryAttempts:        5,
			RetryDelay:           30 * time.Second,
			SyncEvents:           true,
		},
		Capture: CaptureConfig{
			Buffer: 256,
			GCJ02:  true,
		},
		Control: ControlConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:7480",
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration with precedence ENV > file > defaults,
// then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
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

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"backend_url":                  "backend.base_url",
	"backend_timeout":              "backend.timeout",
	"backend_user_agent":           "backend.user_agent",
	"backend_rate_limit":           "backend.rate_limit",
	"backend_burst":                "backend.burst",
	"backend_breaker_enabled":      "backend.breaker.enabled",
	"backend_breaker_max_requests": "backend.breaker.max_requests",
	"backend_breaker_interval":     "backend.breaker.interval",
	"backend_breaker_timeout":      "backend.breaker.timeout",
	"backend_breaker_failures":     "backend.breaker.consecutive_failures",

	"tracksync_user_id":    "auth.user_id",
	"tracksync_master_key": "auth.master_key",

	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_sync_writes": "store.sync_writes",

	"sampling_debounce":           "sampling.debounce",
	"sampling_gps_grace":          "sampling.gps_grace",
	"sampling_accuracy_threshold": "sampling.accuracy_threshold",

	"sync_interval":               "sync.interval",
	"sync_max_batch":              "sync.max_batch",
	"sync_page_size":              "sync.page_size",
	"sync_bootstrap_days":         "sync.bootstrap_days",
	"sync_window_days":            "sync.window_days",
	"sync_empty_window_threshold": "sync.empty_window_threshold",
	"sync_backfill_min_bound":     "sync.backfill_min_bound",
	"sync_retry_attempts":         "sync.retry_attempts",
	"sync_retry_delay":            "sync.retry_delay",
	"sync_events":                 "sync.sync_events",

	"capture_buffer": "capture.buffer",
	"capture_gcj02":  "capture.gcj02",

	"control_enabled":           "control.enabled",
	"control_listen":            "control.listen",
	"control_rate_limit_reqs":   "control.rate_limit_reqs",
	"control_rate_limit_window": "control.rate_limit_window",
	"control_shutdown_timeout":  "control.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
