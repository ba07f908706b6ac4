// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"time"

	"github.com/tomtom215/tracksync/internal/models"
)

// NoReceiptReason marks a row that was sent but named in neither list of
// the receipt.
const NoReceiptReason = "no_receipt"

// Reconcile returns the new sync state of every sent row under receipt.
// A key that is both accepted and rejected ends FAILED. A nil receipt
// fails every row with NoReceiptReason.
//
// The result depends only on its inputs, and feeding the resulting states
// back in with the same receipt yields the same states.
func Reconcile(sent []models.SyncUpdate, receipt *models.Receipt, now time.Time) []models.SyncUpdate {
	accepted := make(map[string]bool)
	rejected := make(map[string]string)
	if receipt != nil {
		for _, id := range receipt.AcceptedIDs {
			accepted[id] = true
		}
		for _, r := range receipt.Rejected {
			if _, seen := rejected[r.ClientPointID]; !seen {
				rejected[r.ClientPointID] = r.Reason()
			}
		}
	}

	out := make([]models.SyncUpdate, 0, len(sent))
	for _, row := range sent {
		var next models.SyncState
		if reason, ok := rejected[row.ID]; ok {
			next = row.State.Failed(reason, now)
		} else if accepted[row.ID] {
			next = row.State.Acked(now)
		} else {
			next = row.State.Failed(NoReceiptReason, now)
		}
		out = append(out, models.SyncUpdate{ID: row.ID, State: next})
	}
	return out
}

// TakeBatch returns at most max leading elements of rows, in order.
func TakeBatch[T any](rows []T, max int) []T {
	if max <= 0 {
		return nil
	}
	if len(rows) > max {
		return rows[:max:max]
	}
	return rows
}
