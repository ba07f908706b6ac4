// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/models"
)

func TestUpload_AcceptOneRejectOne(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertPoint(t, st, trackPoint("A", testNow.Add(-2*time.Minute)))
	insertPoint(t, st, trackPoint("B", testNow.Add(-time.Minute)))
	remote.upload = func([]models.TrackPoint) (*models.Receipt, error) {
		return &models.Receipt{
			AcceptedIDs: []string{"A"},
			Rejected:    []models.Rejection{{ClientPointID: "B", ReasonCode: "bad_coord"}},
		}, nil
	}

	res, err := e.Upload(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Sent != 2 || res.Accepted != 1 || res.Rejected != 1 {
		t.Errorf("result = %+v", res)
	}

	a := getPoint(t, st, "A")
	if a.Sync.Status != models.StatusAcked || a.Sync.LastError != "" || a.Sync.LastSyncedAt == nil {
		t.Errorf("A sync = %+v, want ACKED without error", a.Sync)
	}
	b := getPoint(t, st, "B")
	if b.Sync.Status != models.StatusFailed || b.Sync.LastError != "bad_coord" {
		t.Errorf("B sync = %+v, want FAILED bad_coord", b.Sync)
	}

	pending, _ := st.PendingPoints(context.Background(), testUser, 0)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestUpload_LocalValidationNeverSent(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	bad := trackPoint("no-acc", testNow.Add(-time.Minute))
	bad.Accuracy = nil
	insertPoint(t, st, bad)
	insertPoint(t, st, trackPoint("good", testNow))

	res, err := e.Upload(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Invalid != 1 || res.Sent != 1 {
		t.Errorf("result = %+v", res)
	}
	for _, batch := range remote.uploaded {
		for _, it := range batch {
			if it.ClientPointID == "no-acc" {
				t.Error("invalid point was sent")
			}
		}
	}
	p := getPoint(t, st, "no-acc")
	if p.Sync.Status != models.StatusFailed || p.Sync.LastError != "missing_accuracy" {
		t.Errorf("sync = %+v, want FAILED missing_accuracy", p.Sync)
	}

	// failed rows are not retried automatically
	if _, err := e.Upload(context.Background(), testUser); err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if len(remote.uploaded) != 1 {
		t.Errorf("uploads = %d, want 1", len(remote.uploaded))
	}
}

func TestUpload_AllInvalidMakesNoCall(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	bad := trackPoint("bad", testNow)
	bad.Latitude = 123
	insertPoint(t, st, bad)

	if _, err := e.Upload(context.Background(), testUser); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(remote.callLog()) != 0 {
		t.Errorf("calls = %v, want none", remote.callLog())
	}
}

func TestUpload_TransportFailureRevertsToQueued(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertPoint(t, st, trackPoint("A", testNow))
	insertPoint(t, st, trackPoint("B", testNow.Add(time.Second)))
	remote.upload = func([]models.TrackPoint) (*models.Receipt, error) {
		return nil, &backend.APIError{Endpoint: "tracks.batch", StatusCode: http.StatusBadGateway}
	}

	_, err := e.Upload(context.Background(), testUser)
	if err == nil {
		t.Fatal("expected error")
	}
	if !backend.IsTransient(err) {
		t.Errorf("error should stay transient: %v", err)
	}
	for _, id := range []string{"A", "B"} {
		p := getPoint(t, st, id)
		if p.Sync.Status != models.StatusQueued {
			t.Errorf("%s status = %v, want QUEUED", id, p.Sync.Status)
		}
		if p.Sync.LastError != "http_502" {
			t.Errorf("%s error = %q, want http_502", id, p.Sync.LastError)
		}
	}
}

func TestUpload_LeavesOtherRowsAlone(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertPoint(t, st, trackPoint("acked", testNow.Add(-time.Hour)))
	if _, err := e.Upload(context.Background(), testUser); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	insertPoint(t, st, trackPoint("new", testNow))
	remote.upload = func([]models.TrackPoint) (*models.Receipt, error) {
		return nil, errors.New("connection reset")
	}
	_, _ = e.Upload(context.Background(), testUser)

	if got := getPoint(t, st, "acked").Sync.Status; got != models.StatusAcked {
		t.Errorf("acked row regressed to %v", got)
	}
	if got := getPoint(t, st, "new").Sync.Status; got != models.StatusQueued {
		t.Errorf("new row = %v, want QUEUED", got)
	}
}

func TestUpload_BatchCapAndFull(t *testing.T) {
	t.Parallel()

	cfg := testSyncConfig()
	cfg.MaxBatch = 3
	e, st, remote, _ := newTestEngine(t, cfg)
	for i := 0; i < 5; i++ {
		insertPoint(t, st, trackPoint(fmt.Sprintf("p%d", i), testNow.Add(time.Duration(i)*time.Second)))
	}

	res, err := e.Upload(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Full || res.Sent != 3 {
		t.Errorf("result = %+v, want full batch of 3", res)
	}
	if got := remote.uploaded[0]; got[0].ClientPointID != "p0" || got[2].ClientPointID != "p2" {
		t.Errorf("batch not oldest first: %v..%v", got[0].ClientPointID, got[2].ClientPointID)
	}

	res, _ = e.Upload(context.Background(), testUser)
	if res.Full || res.Sent != 2 {
		t.Errorf("second result = %+v, want 2 rows and not full", res)
	}
}

func TestUpload_MissingFromReceipt(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertPoint(t, st, trackPoint("A", testNow))
	insertPoint(t, st, trackPoint("B", testNow.Add(time.Second)))
	remote.upload = func([]models.TrackPoint) (*models.Receipt, error) {
		return &models.Receipt{AcceptedIDs: []string{"A"}}, nil
	}

	res, err := e.Upload(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Missing != 1 {
		t.Errorf("Missing = %d, want 1", res.Missing)
	}
	if p := getPoint(t, st, "B"); p.Sync.Status != models.StatusFailed || p.Sync.LastError != NoReceiptReason {
		t.Errorf("B = %+v, want FAILED no_receipt", p.Sync)
	}
}

func lifeEvent(id string, at time.Time) models.LifeEvent {
	return models.LifeEvent{ClientEventID: id, EventType: models.EventPoint, StartAt: at, Label: "coffee"}
}

func insertEvent(t *testing.T, e *Engine, ev models.LifeEvent) {
	t.Helper()
	if err := e.store.InsertEvent(context.Background(), &models.Event{UserID: testUser, LifeEvent: ev}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
}

func TestUploadEvents(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertEvent(t, e, lifeEvent("e1", testNow))
	insertEvent(t, e, lifeEvent("e2", testNow.Add(time.Second)))
	noLabel := lifeEvent("e3", testNow.Add(2*time.Second))
	noLabel.Label = ""
	insertEvent(t, e, noLabel)

	remote.put = func(ev models.LifeEvent) error {
		if ev.ClientEventID == "e2" {
			return &backend.APIError{StatusCode: http.StatusUnprocessableEntity, Code: "overlap"}
		}
		return nil
	}

	res, err := e.UploadEvents(context.Background(), testUser)
	if err != nil {
		t.Fatalf("UploadEvents: %v", err)
	}
	if res.Accepted != 1 || res.Rejected != 1 || res.Invalid != 1 {
		t.Errorf("result = %+v", res)
	}

	want := map[string]struct {
		status models.SyncStatus
		reason string
	}{
		"e1": {models.StatusAcked, ""},
		"e2": {models.StatusFailed, "overlap"},
		"e3": {models.StatusFailed, "missing_label"},
	}
	for id, w := range want {
		ev, err := st.GetEvent(context.Background(), testUser, id)
		if err != nil {
			t.Fatalf("GetEvent(%s): %v", id, err)
		}
		if ev.Sync.Status != w.status || ev.Sync.LastError != w.reason {
			t.Errorf("%s = %v %q, want %v %q", id, ev.Sync.Status, ev.Sync.LastError, w.status, w.reason)
		}
	}
}

func TestUploadEvents_TransportFailureStopsPass(t *testing.T) {
	t.Parallel()

	e, st, remote, _ := newTestEngine(t, testSyncConfig())
	insertEvent(t, e, lifeEvent("e1", testNow))
	insertEvent(t, e, lifeEvent("e2", testNow.Add(time.Second)))
	insertEvent(t, e, lifeEvent("e3", testNow.Add(2*time.Second)))

	remote.put = func(ev models.LifeEvent) error {
		if ev.ClientEventID == "e2" {
			return context.DeadlineExceeded
		}
		return nil
	}

	_, err := e.UploadEvents(context.Background(), testUser)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	puts := 0
	for _, c := range remote.callLog() {
		if c == "put" {
			puts++
		}
	}
	if puts != 2 {
		t.Errorf("puts = %d, want 2", puts)
	}

	e1, _ := st.GetEvent(context.Background(), testUser, "e1")
	if e1.Sync.Status != models.StatusAcked {
		t.Errorf("e1 = %v, want ACKED", e1.Sync.Status)
	}
	for _, id := range []string{"e2", "e3"} {
		ev, _ := st.GetEvent(context.Background(), testUser, id)
		if ev.Sync.Status != models.StatusQueued || ev.Sync.LastError != "timeout" {
			t.Errorf("%s = %v %q, want QUEUED timeout", id, ev.Sync.Status, ev.Sync.LastError)
		}
	}
}
