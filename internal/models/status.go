// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

import (
	"fmt"
	"time"
)

// SyncStatus is the per-row sync state of a point or event.
type SyncStatus uint8

// The value set is closed; persisted rows carry the names, not the numbers.
const (
	StatusNew SyncStatus = iota
	StatusQueued
	StatusUploading
	StatusAcked
	StatusFailed
)

var statusNames = [...]string{
	StatusNew:       "NEW",
	StatusQueued:    "QUEUED",
	StatusUploading: "UPLOADING",
	StatusAcked:     "ACKED",
	StatusFailed:    "FAILED",
}

// AllStatuses lists every status in declaration order.
func AllStatuses() []SyncStatus {
	return []SyncStatus{StatusNew, StatusQueued, StatusUploading, StatusAcked, StatusFailed}
}

func (s SyncStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("SyncStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the declared statuses.
func (s SyncStatus) Valid() bool {
	return int(s) < len(statusNames)
}

// IsPending reports whether a row in this status is eligible for upload.
func (s SyncStatus) IsPending() bool {
	return s == StatusNew || s == StatusQueued || s == StatusUploading
}

// CanTransition reports whether a row may move from s to next.
// ACKED rows only move to FAILED, via explicit reconciliation. A local edit
// of an acknowledged row goes through SyncState.Revised instead.
func (s SyncStatus) CanTransition(next SyncStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == StatusAcked {
		return next == StatusAcked || next == StatusFailed
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (s SyncStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sync status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SyncStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSyncStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSyncStatus parses a status name.
func ParseSyncStatus(name string) (SyncStatus, error) {
	for i, n := range statusNames {
		if n == name {
			return SyncStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sync status %q", name)
}

// SyncState is the mutable part of a queued row.
type SyncState struct {
	Status       SyncStatus `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Revision counts local edits made after the row was first queued.
	// Upload results carry the revision they were built from.
	Revision uint32 `json:"revision,omitempty"`
}

// Acked returns the state of a row the server has confirmed at now.
// An already-acknowledged row keeps its original synced time.
func (st SyncState) Acked(now time.Time) SyncState {
	synced := now.UTC()
	if st.Status == StatusAcked && st.LastSyncedAt != nil {
		synced = *st.LastSyncedAt
	}
	return SyncState{Status: StatusAcked, LastSyncedAt: &synced, UpdatedAt: synced, Revision: st.Revision}
}

// Failed returns the state of a row that failed with reason.
func (st SyncState) Failed(reason string, now time.Time) SyncState {
	if st.Status == StatusFailed && st.LastError == reason {
		return st
	}
	return SyncState{Status: StatusFailed, LastError: reason, LastSyncedAt: st.LastSyncedAt, UpdatedAt: now.UTC(), Revision: st.Revision}
}

// Revised returns the state of a row that was changed locally. The row is
// queued again under the next revision; LastSyncedAt is kept so a copy the
// server already holds is known to be stale.
func (st SyncState) Revised(now time.Time) SyncState {
	return SyncState{
		Status:       StatusQueued,
		LastSyncedAt: st.LastSyncedAt,
		UpdatedAt:    now.UTC(),
		Revision:     st.Revision + 1,
	}
}

// HasLocalRevision reports whether the row carries a local change the
// server has not acknowledged yet.
func (st SyncState) HasLocalRevision() bool {
	return st.Status.IsPending() && (st.LastSyncedAt != nil || st.Revision > 0)
}

// Supersedes reports whether st was revised after u was built, in which
// case u describes a copy that is no longer current.
func (st SyncState) Supersedes(u SyncState) bool {
	return st.Revision > u.Revision
}

// SyncUpdate is a reconciled state for one row.
type SyncUpdate struct {
	ID    string
	State SyncState
}
