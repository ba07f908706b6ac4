// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package store

import (
	"context"
	"time"

	"github.com/tomtom215/tracksync/internal/logging"
)

// DefaultGCInterval is how often GCService reclaims value log space.
const DefaultGCInterval = 10 * time.Minute

// GCService runs badger value log GC on a ticker. It reclaims disk space
// only; rows are never expired.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService returns a GC loop for s. interval <= 0 uses DefaultGCInterval.
func NewGCService(s *Store, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GCService{store: s, interval: interval}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := g.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Store GC failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Store GC complete")
		}
	}
}

func (g *GCService) String() string {
	return "store-gc"
}
