// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package store is the local durable queue: points, life events, sync meta
// and credentials in one BadgerDB.
//
// Writes are row-scoped badger transactions keyed by (user, client id), so
// the capture path and the sync path can work on disjoint rows without
// further locking. Rows are only removed by ClearUser, DeleteEvent and Reset.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/logging"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")

	// ErrDuplicate is returned when a row with the same key already exists.
	ErrDuplicate = errors.New("duplicate client id")

	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRangeClosed is returned when ending an event that is not an open range.
	ErrRangeClosed = errors.New("event is not an open range")
)

const gcDiscardRatio = 0.5

// Store is the BadgerDB-backed queue.
type Store struct {
	db  *badger.DB
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Store opened")
	return newStore(db), nil
}

// OpenInMemory opens a throwaway in-memory store.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *badger.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source used to stamp rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().UTC()
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

// ClearUser deletes every point and event owned by user.
func (s *Store) ClearUser(ctx context.Context, user string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	prefixes := append(points.userPrefixes(user), events.userPrefixes(user)...)
	if err := s.db.DropPrefix(prefixes...); err != nil {
		return fmt.Errorf("clear user rows: %w", err)
	}
	logging.Info().Str("user_id", user).Msg("Local rows cleared")
	return nil
}

// Reset drops everything: rows, meta and credentials.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	logging.Warn().Msg("Local store reset")
	return nil
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(context.Background()); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Store closed")
	return nil
}
