// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Debounce bounds for the sampling filter.
const (
	MinDebounce = 3 * time.Second
	MaxDebounce = 5 * time.Second
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateControl(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be a valid http(s) URL, got %q", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BACKEND_URL must use http or https scheme, got %q", u.Scheme)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %v", c.Backend.Timeout)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must not be negative, got %v", c.Backend.RateLimit)
	}
	if c.Backend.RateLimit > 0 && c.Backend.Burst < 1 {
		return fmt.Errorf("BACKEND_BURST must be at least 1 when rate limiting, got %d", c.Backend.Burst)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY is set")
	}
	return nil
}

func (c *Config) validateSampling() error {
	if c.Sampling.Debounce < MinDebounce || c.Sampling.Debounce > MaxDebounce {
		return fmt.Errorf("SAMPLING_DEBOUNCE must be between %v and %v, got %v", MinDebounce, MaxDebounce, c.Sampling.Debounce)
	}
	if c.Sampling.GPSGrace <= 0 {
		return fmt.Errorf("SAMPLING_GPS_GRACE must be positive, got %v", c.Sampling.GPSGrace)
	}
	if c.Sampling.AccuracyThreshold <= 0 {
		return fmt.Errorf("SAMPLING_ACCURACY_THRESHOLD must be positive, got %v", c.Sampling.AccuracyThreshold)
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	if s.Interval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %v", s.Interval)
	}
	if s.MaxBatch < 1 || s.MaxBatch > 1000 {
		return fmt.Errorf("SYNC_MAX_BATCH must be between 1 and 1000, got %d", s.MaxBatch)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive, got %d", s.PageSize)
	}
	if s.BootstrapDays < 1 {
		return fmt.Errorf("SYNC_BOOTSTRAP_DAYS must be positive, got %d", s.BootstrapDays)
	}
	if s.WindowDays < 1 {
		return fmt.Errorf("SYNC_WINDOW_DAYS must be positive, got %d", s.WindowDays)
	}
	if s.EmptyWindowThreshold < 1 {
		return fmt.Errorf("SYNC_EMPTY_WINDOW_THRESHOLD must be positive, got %d", s.EmptyWindowThreshold)
	}
	if s.BackfillMinBound != "" {
		if _, err := time.Parse(time.RFC3339, s.BackfillMinBound); err != nil {
			return fmt.Errorf("SYNC_BACKFILL_MIN_BOUND must be RFC 3339: %w", err)
		}
	}
	if s.RetryAttempts < 0 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must not be negative, got %d", s.RetryAttempts)
	}
	if s.RetryAttempts > 0 && s.RetryDelay <= 0 {
		return fmt.Errorf("SYNC_RETRY_DELAY must be positive, got %v", s.RetryDelay)
	}
	return nil
}

func (c *Config) validateControl() error {
	if !c.Control.Enabled {
		return nil
	}
	if c.Control.Listen == "" {
		return fmt.Errorf("CONTROL_LISTEN is required when the control server is enabled")
	}
	if c.Control.RateLimitReqs < 1 {
		return fmt.Errorf("CONTROL_RATE_LIMIT_REQS must be positive, got %d", c.Control.RateLimitReqs)
	}
	if c.Control.RateLimitWindow <= 0 {
		return fmt.Errorf("CONTROL_RATE_LIMIT_WINDOW must be positive, got %v", c.Control.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
