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

// InsertPoint stores a captured point. A point whose key already exists is
// left untouched and ErrDuplicate is returned.
func (s *Store) InsertPoint(ctx context.Context, p *models.Point) error {
	if p.Sync.UpdatedAt.IsZero() {
		p.Sync.UpdatedAt = s.clock()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return points.insert(txn, p)
	})
}

// GetPoint returns one point or ErrNotFound.
func (s *Store) GetPoint(ctx context.Context, user, id string) (*models.Point, error) {
	var p *models.Point
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		p, err = points.get(txn, user, id)
		return err
	})
	return p, err
}

// PendingPoints returns up to max points in NEW, QUEUED or UPLOADING,
// oldest capture first. max <= 0 means no limit.
func (s *Store) PendingPoints(ctx context.Context, user string, max int) ([]models.Point, error) {
	var out []models.Point
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = points.pendingRows(txn, user, max)
		return err
	})
	return out, err
}

// MarkUploading claims pending points for an upload and returns the ids
// claimed.
func (s *Store) MarkUploading(ctx context.Context, user string, ids []string) ([]string, error) {
	now := s.clock()
	var claimed []string
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		claimed, err = points.markUploading(txn, user, ids, now)
		return err
	})
	return claimed, err
}

// RevertToQueued returns UPLOADING points to QUEUED with reason.
func (s *Store) RevertToQueued(ctx context.Context, user string, ids []string, reason string) (int, error) {
	now := s.clock()
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = points.revertToQueued(txn, user, ids, reason, now)
		return err
	})
	return n, err
}

// ApplyPointUpdates writes reconciled sync states in one transaction.
func (s *Store) ApplyPointUpdates(ctx context.Context, user string, updates []models.SyncUpdate) (int, error) {
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = points.applyUpdates(txn, user, updates)
		return err
	})
	return n, err
}

// UpsertPulledPoints merges server rows: absent rows are inserted ACKED,
// present rows are forced to ACKED with their local payload kept.
func (s *Store) UpsertPulledPoints(ctx context.Context, rows []models.Point) (UpsertCounts, error) {
	now := s.clock()
	var c UpsertCounts
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		c, err = points.upsertPulled(txn, rows, now)
		return err
	})
	if errors.Is(err, badger.ErrTxnTooBig) && len(rows) > 1 {
		half := len(rows) / 2
		a, err := s.UpsertPulledPoints(ctx, rows[:half])
		if err != nil {
			return a, err
		}
		b, err := s.UpsertPulledPoints(ctx, rows[half:])
		return UpsertCounts{
			Inserted:  a.Inserted + b.Inserted,
			Updated:   a.Updated + b.Updated,
			Unchanged: a.Unchanged + b.Unchanged,
		}, err
	}
	return c, err
}

// UpsertPulledPoint merges a single server row.
func (s *Store) UpsertPulledPoint(ctx context.Context, p models.Point) (UpsertCounts, error) {
	return s.UpsertPulledPoints(ctx, []models.Point{p})
}

// ListPoints returns the user's points captured in [start, end), oldest first.
func (s *Store) ListPoints(ctx context.Context, user string, start, end time.Time) ([]models.Point, error) {
	var out []models.Point
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = points.between(txn, user, start, end)
		return err
	})
	return out, err
}

// CountByStatus counts the user's points per sync status.
func (s *Store) CountByStatus(ctx context.Context, user string) (map[models.SyncStatus]int, error) {
	var counts map[models.SyncStatus]int
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		counts, err = points.countByStatus(txn, user)
		return err
	})
	return counts, err
}
