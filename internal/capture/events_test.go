// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
	"github.com/tomtom215/tracksync/internal/validation"
)

func newTestEvents(t *testing.T, remote RemoteDeleter) (*Events, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	e := NewEvents(st, remote)
	e.now = func() time.Time { return t0 }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("e%d", n)
	}
	return e, st
}

func TestEvents_Mark(t *testing.T) {
	t.Parallel()

	e, st := newTestEvents(t, nil)
	ctx := context.Background()

	ev, err := e.Mark(ctx, "u1", EventRequest{Label: "coffee"})
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	got, err := st.GetEvent(ctx, "u1", ev.ClientEventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.EventType != models.EventPoint || !got.StartAt.Equal(t0) || got.Sync.Status != models.StatusNew {
		t.Errorf("event = %+v", got)
	}

	_, err = e.Mark(ctx, "u1", EventRequest{})
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) || verr.ReasonCode() != "missing_label" {
		t.Errorf("Mark without label = %v", err)
	}
}

func TestEvents_SingleActiveRange(t *testing.T) {
	t.Parallel()

	e, _ := newTestEvents(t, nil)
	ctx := context.Background()

	first, err := e.StartRange(ctx, "u1", EventRequest{Label: "commute"})
	if err != nil {
		t.Fatalf("StartRange: %v", err)
	}

	_, err = e.StartRange(ctx, "u1", EventRequest{Label: "second"})
	var active *store.ActiveRangeError
	if !errors.As(err, &active) || active.ID != first.ClientEventID {
		t.Fatalf("second StartRange = %v, want ActiveRangeError for %s", err, first.ClientEventID)
	}

	if _, err := e.StartRange(ctx, "u2", EventRequest{Label: "other user"}); err != nil {
		t.Errorf("another user's range should not conflict: %v", err)
	}

	end := t0.Add(30 * time.Minute)
	closed, err := e.EndActiveRange(ctx, "u1", &end)
	if err != nil {
		t.Fatalf("EndActiveRange: %v", err)
	}
	if closed.EndAt == nil || !closed.EndAt.Equal(end) || closed.Sync.Status != models.StatusQueued {
		t.Errorf("closed = %+v", closed)
	}

	if _, err := e.EndActiveRange(ctx, "u1", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("EndActiveRange with none open = %v, want ErrNotFound", err)
	}
	if _, err := e.StartRange(ctx, "u1", EventRequest{Label: "next"}); err != nil {
		t.Errorf("StartRange after close: %v", err)
	}
}

func TestEvents_DeleteRemoteOnlyWhenSynced(t *testing.T) {
	t.Parallel()

	var remoteDeletes []string
	e, st := newTestEvents(t, func(_ context.Context, id string) error {
		remoteDeletes = append(remoteDeletes, id)
		return nil
	})
	ctx := context.Background()

	local, _ := e.Mark(ctx, "u1", EventRequest{Label: "local only"})
	synced, _ := e.Mark(ctx, "u1", EventRequest{Label: "synced"})
	if _, err := st.ApplyEventUpdates(ctx, "u1", []models.SyncUpdate{
		{ID: synced.ClientEventID, State: synced.Sync.Acked(t0)},
	}); err != nil {
		t.Fatalf("ApplyEventUpdates: %v", err)
	}

	if err := e.Delete(ctx, "u1", local.ClientEventID); err != nil {
		t.Fatalf("Delete local: %v", err)
	}
	if err := e.Delete(ctx, "u1", synced.ClientEventID); err != nil {
		t.Fatalf("Delete synced: %v", err)
	}
	if len(remoteDeletes) != 1 || remoteDeletes[0] != synced.ClientEventID {
		t.Errorf("remote deletes = %v, want [%s]", remoteDeletes, synced.ClientEventID)
	}
	if _, err := st.GetEvent(ctx, "u1", synced.ClientEventID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("synced event still stored: %v", err)
	}
}

func TestEvents_DeleteKeepsLocalOnRemoteFailure(t *testing.T) {
	t.Parallel()

	e, st := newTestEvents(t, func(context.Context, string) error { return errors.New("offline") })
	ctx := context.Background()

	ev, _ := e.Mark(ctx, "u1", EventRequest{Label: "synced"})
	_, _ = st.ApplyEventUpdates(ctx, "u1", []models.SyncUpdate{{ID: ev.ClientEventID, State: ev.Sync.Acked(t0)}})

	if err := e.Delete(ctx, "u1", ev.ClientEventID); err == nil {
		t.Fatal("Delete should fail when the remote delete fails")
	}
	if _, err := st.GetEvent(ctx, "u1", ev.ClientEventID); err != nil {
		t.Errorf("event should be kept: %v", err)
	}
}
