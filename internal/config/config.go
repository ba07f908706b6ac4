// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package config loads Tracksync configuration.
//
// Configuration is layered with Koanf v2:
//  1. Defaults: built-in values from defaultConfig()
//  2. Config file: optional YAML (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables: explicitly mapped names override everything
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("config")
//	}
//	client := backend.New(cfg.Backend)
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Auth     AuthConfig     `koanf:"auth"`
	Store    StoreConfig    `koanf:"store"`
	Sampling SamplingConfig `koanf:"sampling"`
	Sync     SyncConfig     `koanf:"sync"`
	Capture  CaptureConfig  `koanf:"capture"`
	Control  ControlConfig  `koanf:"control"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// BackendConfig configures the remote API client.
type BackendConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`

	// RateLimit is requests per second; 0 disables client-side limiting.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the circuit breaker around backend calls.
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	MaxRequests         uint32        `koanf:"max_requests"`
	Interval            time.Duration `koanf:"interval"`
	Timeout             time.Duration `koanf:"timeout"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
}

// AuthConfig configures credential handling.
type AuthConfig struct {
	// UserID scopes local rows when the access token carries no subject.
	UserID string `koanf:"user_id"`

	// MasterKey enables AES-GCM encryption of stored tokens.
	MasterKey string `koanf:"master_key"`
}

// StoreConfig configures the BadgerDB queue.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// SamplingConfig tunes the sampling state machine.
type SamplingConfig struct {
	Debounce          time.Duration `koanf:"debounce"`
	GPSGrace          time.Duration `koanf:"gps_grace"`
	AccuracyThreshold float64       `koanf:"accuracy_threshold"`
}

// SyncConfig tunes upload, pull, backfill and scheduling.
type SyncConfig struct {
	Interval      time.Duration `koanf:"interval"`
	MaxBatch      int           `koanf:"max_batch"`
	PageSize      int           `koanf:"page_size"`
	BootstrapDays int           `koanf:"bootstrap_days"`
	WindowDays    int           `koanf:"window_days"`

	// EmptyWindowThreshold pauses backfill after this many consecutive
	// empty windows when no lower bound is known.
	EmptyWindowThreshold int `koanf:"empty_window_threshold"`

	// BackfillMinBound is an RFC 3339 lower bound for backfill, usually the
	// account creation time. Empty means unknown.
	BackfillMinBound string `koanf:"backfill_min_bound"`

	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	SyncEvents    bool          `koanf:"sync_events"`
}

// CaptureConfig configures the capture path.
type CaptureConfig struct {
	Buffer int  `koanf:"buffer"`
	GCJ02  bool `koanf:"gcj02"`
}

// ControlConfig configures the local control HTTP server.
type ControlConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Listen          string        `koanf:"listen"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// BackfillLowerBound parses BackfillMinBound. The second result is false
// when no bound is configured.
func (c *SyncConfig) BackfillLowerBound() (time.Time, bool) {
	if c.BackfillMinBound == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.BackfillMinBound)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Load loads configuration from defaults, config file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
