// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

const testUser = "u1"

var testNow = time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

type fakeSession struct {
	mu       stdsync.Mutex
	loggedIn bool
	err      error
	logouts  int
}

func (f *fakeSession) Do(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, "tok")
}

func (f *fakeSession) Subject(context.Context) string { return testUser }

func (f *fakeSession) LoggedIn(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeSession) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.loggedIn = false
	return nil
}

// fakeRemote serves tracks and events from memory and records calls in
// order.
type fakeRemote struct {
	mu      stdsync.Mutex
	calls   []string
	windows []backend.Window

	upload   func(items []models.TrackPoint) (*models.Receipt, error)
	put      func(ev models.LifeEvent) error
	queryErr error
	tracks   []models.TrackPoint
	events   []models.LifeEvent
	uploaded [][]models.TrackPoint
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) UploadBatch(_ context.Context, _ string, items []models.TrackPoint) (*models.Receipt, error) {
	f.record("upload")
	f.mu.Lock()
	f.uploaded = append(f.uploaded, items)
	fn := f.upload
	f.mu.Unlock()
	if fn != nil {
		return fn(items)
	}
	r := &models.Receipt{}
	for _, it := range items {
		r.AcceptedIDs = append(r.AcceptedIDs, it.ClientPointID)
	}
	return r, nil
}

func (f *fakeRemote) QueryTracks(_ context.Context, _ string, w backend.Window) (*models.TrackQueryResponse, error) {
	f.record("query")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var in []models.TrackPoint
	for _, tp := range f.tracks {
		if !tp.RecordedAt.Before(w.Start) && tp.RecordedAt.Before(w.End) {
			in = append(in, tp)
		}
	}
	return &models.TrackQueryResponse{Items: page(in, w)}, nil
}

func (f *fakeRemote) ListLifeEvents(_ context.Context, _ string, w backend.Window) (*models.LifeEventListResponse, error) {
	f.record("events")
	f.mu.Lock()
	defer f.mu.Unlock()
	var in []models.LifeEvent
	for _, ev := range f.events {
		if !ev.StartAt.Before(w.Start) && ev.StartAt.Before(w.End) {
			in = append(in, ev)
		}
	}
	return &models.LifeEventListResponse{Items: page(in, w)}, nil
}

func (f *fakeRemote) PutLifeEvent(_ context.Context, _ string, ev models.LifeEvent) error {
	f.record("put")
	if f.put != nil {
		return f.put(ev)
	}
	return nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func page[T any](rows []T, w backend.Window) []T {
	if w.Offset >= len(rows) {
		return nil
	}
	end := len(rows)
	if w.Limit > 0 && w.Offset+w.Limit < end {
		end = w.Offset + w.Limit
	}
	return rows[w.Offset:end]
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:             time.Hour,
		MaxBatch:             100,
		PageSize:             500,
		BootstrapDays:        7,
		WindowDays:           7,
		EmptyWindowThreshold: 12,
		RetryAttempts:        3,
		RetryDelay:           10 * time.Millisecond,
		SyncEvents:           true,
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	s.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, cfg config.SyncConfig) (*Engine, *store.Store, *fakeRemote, *fakeSession) {
	t.Helper()
	st := newTestStore(t)
	remote := &fakeRemote{}
	sess := &fakeSession{loggedIn: true}
	e := NewEngine(st, remote, sess, cfg)
	e.SetClock(func() time.Time { return testNow })
	return e, st, remote, sess
}

func trackPoint(id string, at time.Time) models.TrackPoint {
	acc := 8.0
	return models.TrackPoint{
		ClientPointID: id,
		RecordedAt:    at,
		Latitude:      31.2304,
		Longitude:     121.4737,
		Accuracy:      &acc,
	}
}

func insertPoint(t *testing.T, st *store.Store, tp models.TrackPoint) {
	t.Helper()
	p := &models.Point{UserID: testUser, TrackPoint: tp}
	if err := st.InsertPoint(context.Background(), p); err != nil {
		t.Fatalf("InsertPoint(%s): %v", tp.ClientPointID, err)
	}
}

func getPoint(t *testing.T, st *store.Store, id string) *models.Point {
	t.Helper()
	p, err := st.GetPoint(context.Background(), testUser, id)
	if err != nil {
		t.Fatalf("GetPoint(%s): %v", id, err)
	}
	return p
}
