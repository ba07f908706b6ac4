// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"fmt"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/validation"
)

// UploadResult counts what one upload pass did.
type UploadResult struct {
	Selected int
	Invalid  int
	Sent     int
	Accepted int
	Rejected int
	Missing  int
	// Full is set when the selection hit the batch cap, so more rows may
	// be waiting.
	Full bool
}

// Upload sends one batch of the user's pending points.
func (e *Engine) Upload(ctx context.Context, user string) (UploadResult, error) {
	var res UploadResult

	pending, err := e.store.PendingPoints(ctx, user, e.maxBatch)
	if err != nil {
		return res, fmt.Errorf("select pending points: %w", err)
	}
	batch := TakeBatch(pending, e.maxBatch)
	res.Selected = len(batch)
	res.Full = len(batch) == e.maxBatch
	if len(batch) == 0 {
		return res, nil
	}

	now := e.now()
	var invalid []models.SyncUpdate
	valid := make([]models.Point, 0, len(batch))
	for i := range batch {
		if verr := validation.ValidateStruct(&batch[i].TrackPoint); verr != nil {
			invalid = append(invalid, models.SyncUpdate{
				ID:    batch[i].ClientPointID,
				State: batch[i].Sync.Failed(verr.ReasonCode(), now),
			})
			continue
		}
		valid = append(valid, batch[i])
	}
	if len(invalid) > 0 {
		if _, err := e.store.ApplyPointUpdates(ctx, user, invalid); err != nil {
			return res, fmt.Errorf("fail invalid points: %w", err)
		}
		res.Invalid = len(invalid)
		metrics.RecordUploadOutcome("point", "invalid", len(invalid))
		logging.Ctx(ctx).Warn().Int("count", len(invalid)).Str("first_reason", invalid[0].State.LastError).
			Msg("Points failed local validation and will not be sent")
	}
	if len(valid) == 0 {
		return res, nil
	}

	ids := make([]string, len(valid))
	for i := range valid {
		ids[i] = valid[i].ClientPointID
	}
	claimed, err := e.store.MarkUploading(ctx, user, ids)
	if err != nil {
		return res, fmt.Errorf("mark uploading: %w", err)
	}
	owned := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		owned[id] = true
	}

	items := make([]models.TrackPoint, 0, len(claimed))
	sent := make([]models.SyncUpdate, 0, len(claimed))
	for i := range valid {
		if !owned[valid[i].ClientPointID] {
			continue
		}
		st := valid[i].Sync
		st.Status = models.StatusUploading
		items = append(items, valid[i].TrackPoint)
		sent = append(sent, models.SyncUpdate{ID: valid[i].ClientPointID, State: st})
	}
	if len(items) == 0 {
		return res, nil
	}
	res.Sent = len(items)
	metrics.UploadBatchSize.Observe(float64(len(items)))

	var receipt *models.Receipt
	err = e.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		receipt, err = e.remote.UploadBatch(ctx, token, items)
		return err
	})
	if err != nil {
		reason := failureReason(err)
		if _, rerr := e.store.RevertToQueued(context.WithoutCancel(ctx), user, claimed, reason); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).Msg("Failed to revert uploading points")
		}
		metrics.RecordUploadOutcome("point", "reverted", len(claimed))
		return res, fmt.Errorf("upload batch: %w", err)
	}

	updates := Reconcile(sent, receipt, e.now())
	for _, u := range updates {
		switch {
		case u.State.Status == models.StatusAcked:
			res.Accepted++
		case u.State.LastError == NoReceiptReason:
			res.Missing++
		default:
			res.Rejected++
		}
	}
	if _, err := e.store.ApplyPointUpdates(context.WithoutCancel(ctx), user, updates); err != nil {
		return res, fmt.Errorf("apply receipt: %w", err)
	}
	metrics.RecordUploadOutcome("point", "accepted", res.Accepted)
	metrics.RecordUploadOutcome("point", "rejected", res.Rejected)
	metrics.RecordUploadOutcome("point", "no_receipt", res.Missing)

	if res.Missing > 0 {
		logging.Ctx(ctx).Warn().Int("missing", res.Missing).Msg("Receipt omitted sent points")
	}
	logging.Ctx(ctx).Info().
		Int("sent", res.Sent).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Msg("Uploaded point batch")
	return res, nil
}

// UploadEvents upserts one batch of the user's pending life events by id.
// A structured refusal fails only that event. Any other failure returns
// the unsent events to QUEUED and stops the pass.
func (e *Engine) UploadEvents(ctx context.Context, user string) (UploadResult, error) {
	var res UploadResult

	pending, err := e.store.PendingEvents(ctx, user, e.maxBatch)
	if err != nil {
		return res, fmt.Errorf("select pending events: %w", err)
	}
	batch := TakeBatch(pending, e.maxBatch)
	res.Selected = len(batch)
	res.Full = len(batch) == e.maxBatch
	if len(batch) == 0 {
		return res, nil
	}

	now := e.now()
	var updates []models.SyncUpdate
	valid := make([]models.Event, 0, len(batch))
	for i := range batch {
		if verr := validation.ValidateStruct(&batch[i].LifeEvent); verr != nil {
			updates = append(updates, models.SyncUpdate{
				ID:    batch[i].ClientEventID,
				State: batch[i].Sync.Failed(verr.ReasonCode(), now),
			})
			res.Invalid++
			continue
		}
		valid = append(valid, batch[i])
	}

	ids := make([]string, len(valid))
	for i := range valid {
		ids[i] = valid[i].ClientEventID
	}
	claimed, err := e.store.MarkEventsUploading(ctx, user, ids)
	if err != nil {
		return res, fmt.Errorf("mark events uploading: %w", err)
	}
	owned := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		owned[id] = true
	}

	var callErr error
	var unsent []string
	for i := range valid {
		ev := &valid[i]
		if !owned[ev.ClientEventID] {
			continue
		}
		if callErr != nil {
			unsent = append(unsent, ev.ClientEventID)
			continue
		}
		err := e.session.Do(ctx, func(ctx context.Context, token string) error {
			return e.remote.PutLifeEvent(ctx, token, ev.LifeEvent)
		})
		switch {
		case err == nil:
			updates = append(updates, models.SyncUpdate{ID: ev.ClientEventID, State: ev.Sync.Acked(e.now())})
			res.Sent++
			res.Accepted++
		case backend.IsRejection(err):
			updates = append(updates, models.SyncUpdate{ID: ev.ClientEventID, State: ev.Sync.Failed(failureReason(err), e.now())})
			res.Sent++
			res.Rejected++
		default:
			callErr = err
			unsent = append(unsent, ev.ClientEventID)
		}
	}

	if len(updates) > 0 {
		if _, err := e.store.ApplyEventUpdates(context.WithoutCancel(ctx), user, updates); err != nil {
			return res, fmt.Errorf("apply event results: %w", err)
		}
	}
	metrics.RecordUploadOutcome("event", "invalid", res.Invalid)
	metrics.RecordUploadOutcome("event", "accepted", res.Accepted)
	metrics.RecordUploadOutcome("event", "rejected", res.Rejected)

	if callErr != nil {
		if _, err := e.store.RevertEventsToQueued(context.WithoutCancel(ctx), user, unsent, failureReason(callErr)); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to revert uploading events")
		}
		metrics.RecordUploadOutcome("event", "reverted", len(unsent))
		return res, fmt.Errorf("upload events: %w", callErr)
	}
	if res.Sent > 0 {
		logging.Ctx(ctx).Info().Int("sent", res.Sent).Int("rejected", res.Rejected).Msg("Uploaded life events")
	}
	return res, nil
}
