// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tracksync/internal/models"
)

var (
	metaKey        = []byte("meta" + sep + "sync")
	credentialsKey = []byte("cred" + sep + "tokens")
)

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// LoadMeta returns the persisted sync meta, or the defaults when none is stored.
func (s *Store) LoadMeta(ctx context.Context) (models.SyncMeta, error) {
	meta := models.DefaultSyncMeta()
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, metaKey, &meta)
	})
	if errors.Is(err, ErrNotFound) {
		return models.DefaultSyncMeta(), nil
	}
	if err != nil {
		return models.SyncMeta{}, fmt.Errorf("load sync meta: %w", err)
	}
	return meta, nil
}

// SaveMeta replaces the sync meta.
func (s *Store) SaveMeta(ctx context.Context, meta models.SyncMeta) error {
	meta.UpdatedAt = s.clock()
	if err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, metaKey, meta)
	}); err != nil {
		return fmt.Errorf("save sync meta: %w", err)
	}
	return nil
}

// UpdateMeta applies fn to the stored meta in one transaction and returns
// the result.
func (s *Store) UpdateMeta(ctx context.Context, fn func(*models.SyncMeta)) (models.SyncMeta, error) {
	now := s.clock()
	var meta models.SyncMeta
	err := s.update(ctx, func(txn *badger.Txn) error {
		meta = models.DefaultSyncMeta()
		if err := getJSON(txn, metaKey, &meta); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		fn(&meta)
		meta.UpdatedAt = now
		return setJSON(txn, metaKey, meta)
	})
	if err != nil {
		return models.SyncMeta{}, fmt.Errorf("update sync meta: %w", err)
	}
	return meta, nil
}

// ResetMeta forgets all sync meta.
func (s *Store) ResetMeta(ctx context.Context) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(metaKey)
	})
}

// LoadCredentials returns the stored token pair or ErrNotFound.
func (s *Store) LoadCredentials(ctx context.Context) (*models.Credentials, error) {
	var c models.Credentials
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, credentialsKey, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredentials replaces the stored token pair.
func (s *Store) SaveCredentials(ctx context.Context, c models.Credentials) error {
	c.UpdatedAt = s.clock()
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, credentialsKey, c)
	})
}

// ClearCredentials deletes the stored token pair.
func (s *Store) ClearCredentials(ctx context.Context) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(credentialsKey)
	})
}
