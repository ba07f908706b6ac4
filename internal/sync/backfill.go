// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"time"

	"github.com/tomtom215/tracksync/internal/config"
)

const day = 24 * time.Hour

// Planner computes pull windows. It holds no state; the cursor lives in
// the persisted sync meta.
type Planner struct {
	BootstrapDays int
	WindowDays    int
}

// NewPlanner reads window sizes from cfg, defaulting both to 7 days.
func NewPlanner(cfg config.SyncConfig) Planner {
	p := Planner{BootstrapDays: cfg.BootstrapDays, WindowDays: cfg.WindowDays}
	if p.BootstrapDays <= 0 {
		p.BootstrapDays = 7
	}
	if p.WindowDays <= 0 {
		p.WindowDays = 7
	}
	return p
}

// BootstrapRecentRange is [now - BootstrapDays, now).
func (p Planner) BootstrapRecentRange(now time.Time) Range {
	now = now.UTC()
	return Range{Start: now.Add(-time.Duration(p.BootstrapDays) * day), End: now}
}

// NextBackfillWindow returns the window ending at cursorEnd, clipped to
// minBound when one is known. ok is false once nothing is left above the
// bound.
func (p Planner) NextBackfillWindow(cursorEnd time.Time, minBound *time.Time) (Range, bool) {
	end := cursorEnd.UTC()
	start := end.Add(-time.Duration(p.WindowDays) * day)
	if minBound != nil && start.Before(*minBound) {
		start = minBound.UTC()
	}
	if !start.Before(end) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}
