// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tracksync/internal/models"
)

// Key layout, with sep between components and ts an 8-byte sortable time:
//
//	<rows>    user sep id        -> JSON row
//	<pending> user sep ts id     -> (empty) while status is NEW/QUEUED/UPLOADING
//	<time>    user sep ts id     -> (empty)
const sep = "\x00"

// table is the key scheme and accessors shared by points and events.
type table[T any] struct {
	rows    string
	pending string
	byTime  string

	id    func(*T) string
	user  func(*T) string
	at    func(*T) time.Time
	state func(*T) *models.SyncState
}

var points = &table[models.Point]{
	rows:    "pt" + sep,
	pending: "ptq" + sep,
	byTime:  "ptt" + sep,
	id:      func(p *models.Point) string { return p.ClientPointID },
	user:    func(p *models.Point) string { return p.UserID },
	at:      func(p *models.Point) time.Time { return p.RecordedAt },
	state:   func(p *models.Point) *models.SyncState { return &p.Sync },
}

var events = &table[models.Event]{
	rows:    "ev" + sep,
	pending: "evq" + sep,
	byTime:  "evt" + sep,
	id:      func(e *models.Event) string { return e.ClientEventID },
	user:    func(e *models.Event) string { return e.UserID },
	at:      func(e *models.Event) time.Time { return e.StartAt },
	state:   func(e *models.Event) *models.SyncState { return &e.Sync },
}

// tsBytes encodes t so that byte order matches time order, including
// instants before 1970.
func tsBytes(t time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.UnixNano())^(1<<63))
	return b[:]
}

func (tb *table[T]) userPrefix(base, user string) []byte {
	return []byte(base + user + sep)
}

func (tb *table[T]) userPrefixes(user string) [][]byte {
	return [][]byte{
		tb.userPrefix(tb.rows, user),
		tb.userPrefix(tb.pending, user),
		tb.userPrefix(tb.byTime, user),
	}
}

func (tb *table[T]) rowKey(user, id string) []byte {
	return append(tb.userPrefix(tb.rows, user), id...)
}

func (tb *table[T]) indexKey(base, user string, at time.Time, id string) []byte {
	k := tb.userPrefix(base, user)
	k = append(k, tsBytes(at)...)
	return append(k, id...)
}

// indexID extracts the id from an index key under prefix.
func indexID(prefix, key []byte) string {
	return string(key[len(prefix)+8:])
}

func (tb *table[T]) get(txn *badger.Txn, user, id string) (*T, error) {
	item, err := txn.Get(tb.rowKey(user, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	row := new(T)
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, row) }); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return row, nil
}

func (tb *table[T]) write(txn *badger.Txn, row *T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s: %w", tb.id(row), err)
	}
	return txn.Set(tb.rowKey(tb.user(row), tb.id(row)), data)
}

func (tb *table[T]) insert(txn *badger.Txn, row *T) error {
	user, id := tb.user(row), tb.id(row)
	if _, err := tb.get(txn, user, id); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := tb.write(txn, row); err != nil {
		return err
	}
	at := tb.at(row)
	if err := txn.Set(tb.indexKey(tb.byTime, user, at, id), nil); err != nil {
		return err
	}
	if tb.state(row).Status.IsPending() {
		return txn.Set(tb.indexKey(tb.pending, user, at, id), nil)
	}
	return nil
}

// save rewrites row and keeps the pending index in step with its status.
func (tb *table[T]) save(txn *badger.Txn, row *T, prev models.SyncStatus) error {
	if err := tb.write(txn, row); err != nil {
		return err
	}
	was, is := prev.IsPending(), tb.state(row).Status.IsPending()
	if was == is {
		return nil
	}
	key := tb.indexKey(tb.pending, tb.user(row), tb.at(row), tb.id(row))
	if is {
		return txn.Set(key, nil)
	}
	return txn.Delete(key)
}

// scanIndex walks ids under an index prefix in time order. stop, when
// non-nil, bounds the walk exclusively. fn returns false to stop early.
func (tb *table[T]) scanIndex(txn *badger.Txn, prefix, seek, stop []byte, reverse bool, fn func(id string) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		if stop != nil && bytes.Compare(key[len(prefix):len(prefix)+8], stop) >= 0 {
			break
		}
		more, err := fn(indexID(prefix, key))
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

func (tb *table[T]) pendingRows(txn *badger.Txn, user string, max int) ([]T, error) {
	prefix := tb.userPrefix(tb.pending, user)
	var out []T
	err := tb.scanIndex(txn, prefix, prefix, nil, false, func(id string) (bool, error) {
		if max > 0 && len(out) >= max {
			return false, nil
		}
		row, err := tb.get(txn, user, id)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		out = append(out, *row)
		return true, nil
	})
	return out, err
}

func (tb *table[T]) between(txn *badger.Txn, user string, start, end time.Time) ([]T, error) {
	prefix := tb.userPrefix(tb.byTime, user)
	seek := append(append([]byte{}, prefix...), tsBytes(start)...)
	var out []T
	err := tb.scanIndex(txn, prefix, seek, tsBytes(end), false, func(id string) (bool, error) {
		row, err := tb.get(txn, user, id)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		out = append(out, *row)
		return true, nil
	})
	return out, err
}

func (tb *table[T]) countByStatus(txn *badger.Txn, user string) (map[models.SyncStatus]int, error) {
	counts := make(map[models.SyncStatus]int, len(models.AllStatuses()))
	prefix := tb.userPrefix(tb.rows, user)
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var row struct {
			Sync struct {
				Status models.SyncStatus `json:"status"`
			} `json:"sync"`
		}
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		counts[row.Sync.Status]++
	}
	return counts, nil
}

// markUploading moves pending rows to UPLOADING and returns the ids this
// call now owns. Rows left UPLOADING by an interrupted run are re-claimed.
func (tb *table[T]) markUploading(txn *badger.Txn, user string, ids []string, now time.Time) ([]string, error) {
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		row, err := tb.get(txn, user, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		st := tb.state(row)
		if !st.Status.IsPending() {
			continue
		}
		prev := st.Status
		st.Status = models.StatusUploading
		st.UpdatedAt = now
		if err := tb.save(txn, row, prev); err != nil {
			return nil, err
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (tb *table[T]) revertToQueued(txn *badger.Txn, user string, ids []string, reason string, now time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		row, err := tb.get(txn, user, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		st := tb.state(row)
		if st.Status != models.StatusUploading {
			continue
		}
		st.Status = models.StatusQueued
		st.LastError = reason
		st.UpdatedAt = now
		if err := tb.save(txn, row, models.StatusUploading); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// applyUpdates writes reconciled sync states. Payloads are untouched,
// transitions out of ACKED other than to FAILED are refused, and results
// built from an older revision of a row are dropped.
func (tb *table[T]) applyUpdates(txn *badger.Txn, user string, updates []models.SyncUpdate) (int, error) {
	n := 0
	for _, u := range updates {
		row, err := tb.get(txn, user, u.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		st := tb.state(row)
		if !st.Status.CanTransition(u.State.Status) || st.Supersedes(u.State) {
			continue
		}
		prev := st.Status
		*st = u.State
		if err := tb.save(txn, row, prev); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// UpsertCounts summarizes a pulled page merge.
type UpsertCounts struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// upsertPulled inserts absent rows and forces present rows to ACKED. A row
// holding a local revision is left pending: the server copy predates it
// and the next upload replaces it.
func (tb *table[T]) upsertPulled(txn *badger.Txn, rows []T, now time.Time) (UpsertCounts, error) {
	var c UpsertCounts
	for i := range rows {
		incoming := &rows[i]
		existing, err := tb.get(txn, tb.user(incoming), tb.id(incoming))
		switch {
		case errors.Is(err, ErrNotFound):
			*tb.state(incoming) = models.SyncState{}.Acked(now)
			if err := tb.insert(txn, incoming); err != nil {
				return c, err
			}
			c.Inserted++
		case err != nil:
			return c, err
		default:
			st := tb.state(existing)
			if st.Status == models.StatusAcked || st.HasLocalRevision() {
				c.Unchanged++
				continue
			}
			prev := st.Status
			*st = st.Acked(now)
			if err := tb.save(txn, existing, prev); err != nil {
				return c, err
			}
			c.Updated++
		}
	}
	return c, nil
}
