// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tracksync/internal/models"
)

// InsertEvent stores a life event; ErrDuplicate if the key exists.
func (s *Store) InsertEvent(ctx context.Context, e *models.Event) error {
	if e.Sync.UpdatedAt.IsZero() {
		e.Sync.UpdatedAt = s.clock()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return events.insert(txn, e)
	})
}

// StartRange inserts an open RANGE event unless the user already has one.
// The check and the insert share a transaction.
func (s *Store) StartRange(ctx context.Context, e *models.Event) error {
	if !e.IsOpenRange() {
		return ErrRangeClosed
	}
	if e.Sync.UpdatedAt.IsZero() {
		e.Sync.UpdatedAt = s.clock()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		active, err := activeRange(txn, e.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if active != nil {
			return &ActiveRangeError{ID: active.ClientEventID}
		}
		return events.insert(txn, e)
	})
}

// ActiveRangeError reports the open range that blocks a new one.
type ActiveRangeError struct {
	ID string
}

func (e *ActiveRangeError) Error() string {
	return "range " + e.ID + " is still active"
}

// GetEvent returns one event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, user, id string) (*models.Event, error) {
	var e *models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		e, err = events.get(txn, user, id)
		return err
	})
	return e, err
}

// ActiveRange returns the user's most recent open RANGE event, or ErrNotFound.
func (s *Store) ActiveRange(ctx context.Context, user string) (*models.Event, error) {
	var e *models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		e, err = activeRange(txn, user)
		return err
	})
	return e, err
}

func activeRange(txn *badger.Txn, user string) (*models.Event, error) {
	prefix := events.userPrefix(events.byTime, user)
	seek := append(append([]byte{}, prefix...), 0xFF)
	var found *models.Event
	err := events.scanIndex(txn, prefix, seek, nil, true, func(id string) (bool, error) {
		e, err := events.get(txn, user, id)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if e.IsOpenRange() {
			found = e
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// EndRange closes an open range at end and queues the revision for upload.
func (s *Store) EndRange(ctx context.Context, user, id string, end time.Time) (*models.Event, error) {
	now := s.clock()
	var out *models.Event
	err := s.update(ctx, func(txn *badger.Txn) error {
		e, err := events.get(txn, user, id)
		if err != nil {
			return err
		}
		if !e.IsOpenRange() {
			return ErrRangeClosed
		}
		end = end.UTC()
		if end.Before(e.StartAt) {
			end = e.StartAt
		}
		prev := e.Sync.Status
		e.EndAt = &end
		e.Sync = e.Sync.Revised(now)
		if err := events.save(txn, e, prev); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// DeleteEvent removes one event at the user's request.
func (s *Store) DeleteEvent(ctx context.Context, user, id string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		e, err := events.get(txn, user, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(events.rowKey(user, id)); err != nil {
			return err
		}
		if err := txn.Delete(events.indexKey(events.byTime, user, e.StartAt, id)); err != nil {
			return err
		}
		return txn.Delete(events.indexKey(events.pending, user, e.StartAt, id))
	})
}

// PendingEvents returns up to max events awaiting upload, oldest first.
func (s *Store) PendingEvents(ctx context.Context, user string, max int) ([]models.Event, error) {
	var out []models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = events.pendingRows(txn, user, max)
		return err
	})
	return out, err
}

// MarkEventsUploading claims pending events and returns the ids claimed.
func (s *Store) MarkEventsUploading(ctx context.Context, user string, ids []string) ([]string, error) {
	now := s.clock()
	var claimed []string
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		claimed, err = events.markUploading(txn, user, ids, now)
		return err
	})
	return claimed, err
}

// RevertEventsToQueued returns UPLOADING events to QUEUED with reason.
func (s *Store) RevertEventsToQueued(ctx context.Context, user string, ids []string, reason string) (int, error) {
	now := s.clock()
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = events.revertToQueued(txn, user, ids, reason, now)
		return err
	})
	return n, err
}

// ApplyEventUpdates writes reconciled event sync states.
func (s *Store) ApplyEventUpdates(ctx context.Context, user string, updates []models.SyncUpdate) (int, error) {
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = events.applyUpdates(txn, user, updates)
		return err
	})
	return n, err
}

// UpsertPulledEvents merges server events the same way as points.
func (s *Store) UpsertPulledEvents(ctx context.Context, rows []models.Event) (UpsertCounts, error) {
	now := s.clock()
	var c UpsertCounts
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		c, err = events.upsertPulled(txn, rows, now)
		return err
	})
	return c, err
}

// ListEvents returns the user's events starting in [start, end).
func (s *Store) ListEvents(ctx context.Context, user string, start, end time.Time) ([]models.Event, error) {
	var out []models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = events.between(txn, user, start, end)
		return err
	})
	return out, err
}

// CountEventsByStatus counts the user's events per sync status.
func (s *Store) CountEventsByStatus(ctx context.Context, user string) (map[models.SyncStatus]int, error) {
	var counts map[models.SyncStatus]int
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		counts, err = events.countByStatus(txn, user)
		return err
	})
	return counts, err
}
