// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/tracksync/internal/metrics"
)

// ErrBusy is returned by TryRun when another run holds the guard.
var ErrBusy = errors.New("sync already running")

// Guard admits one sync execution at a time. Refresh tokens rotate on use,
// so two runs refreshing concurrently would invalidate each other.
type Guard struct {
	sem *semaphore.Weighted
}

// NewGuard creates an unheld guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Run waits for the guard, then runs fn.
func (g *Guard) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

// TryRun runs fn only if the guard is free, otherwise returns ErrBusy.
func (g *Guard) TryRun(ctx context.Context, fn func(context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		metrics.GuardBusy.Inc()
		return ErrBusy
	}
	defer g.sem.Release(1)
	return fn(ctx)
}
