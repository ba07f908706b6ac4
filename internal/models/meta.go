// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

import "time"

// Phase is the persisted orchestration phase.
type Phase string

const (
	PhaseIdle            Phase = "IDLE"
	PhaseBootstrapRecent Phase = "BOOTSTRAP_RECENT"
	PhaseBackfilling     Phase = "BACKFILLING"
	PhasePaused          Phase = "PAUSED"
	PhaseUpToDate        Phase = "UP_TO_DATE"
	PhaseError           Phase = "ERROR"
)

// SyncMeta is the process-durable sync state kept beside the queue.
type SyncMeta struct {
	Phase     Phase  `json:"phase"`
	Progress  string `json:"progress,omitempty"`
	LastError string `json:"last_error,omitempty"`

	LastUploadAt *time.Time `json:"last_upload_at,omitempty"`
	LastPullAt   *time.Time `json:"last_pull_at,omitempty"`

	// BackfillCursor is the earliest UTC boundary already covered.
	BackfillCursor     *time.Time `json:"backfill_cursor,omitempty"`
	BackfillLowerBound *time.Time `json:"backfill_lower_bound,omitempty"`
	BackfillEnabled    bool       `json:"backfill_enabled"`
	EmptyWindowStreak  int        `json:"empty_window_streak"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSyncMeta is the state of a freshly installed or reset client.
func DefaultSyncMeta() SyncMeta {
	return SyncMeta{Phase: PhaseIdle, BackfillEnabled: true}
}
