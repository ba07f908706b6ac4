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
	"github.com/tomtom215/tracksync/internal/store"
)

// maxPullPages bounds a single pull against a server that never returns a
// short page.
const maxPullPages = 10000

// PullResult counts what one pull did.
type PullResult struct {
	Fetched   int
	Inserted  int
	Updated   int
	Unchanged int
}

func (r *PullResult) add(fetched int, c store.UpsertCounts) {
	r.Fetched += fetched
	r.Inserted += c.Inserted
	r.Updated += c.Updated
	r.Unchanged += c.Unchanged
}

// Pull merges every server point in window into the store. Pages are
// requested with increasing offset until one comes back short.
func (e *Engine) Pull(ctx context.Context, user string, window Range) (PullResult, error) {
	var res PullResult
	err := e.pages(ctx, window, func(ctx context.Context, token string, w backend.Window) (int, error) {
		resp, err := e.remote.QueryTracks(ctx, token, w)
		if err != nil {
			return 0, err
		}
		if len(resp.Items) == 0 {
			return 0, nil
		}
		rows := make([]models.Point, len(resp.Items))
		for i := range resp.Items {
			rows[i] = models.Point{UserID: user, TrackPoint: resp.Items[i]}
		}
		counts, err := e.store.UpsertPulledPoints(ctx, rows)
		if err != nil {
			return 0, fmt.Errorf("merge pulled points: %w", err)
		}
		res.add(len(rows), counts)
		return len(rows), nil
	})
	metrics.RecordPull("point", res.Inserted, res.Updated, res.Unchanged)
	if err != nil {
		return res, fmt.Errorf("pull tracks: %w", err)
	}
	logging.Ctx(ctx).Info().
		Time("start", window.Start).
		Time("end", window.End).
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Msg("Pulled tracks")
	return res, nil
}

// PullEvents merges every server life event in window into the store.
func (e *Engine) PullEvents(ctx context.Context, user string, window Range) (PullResult, error) {
	var res PullResult
	err := e.pages(ctx, window, func(ctx context.Context, token string, w backend.Window) (int, error) {
		resp, err := e.remote.ListLifeEvents(ctx, token, w)
		if err != nil {
			return 0, err
		}
		if len(resp.Items) == 0 {
			return 0, nil
		}
		rows := make([]models.Event, len(resp.Items))
		for i := range resp.Items {
			rows[i] = models.Event{UserID: user, LifeEvent: resp.Items[i]}
		}
		counts, err := e.store.UpsertPulledEvents(ctx, rows)
		if err != nil {
			return 0, fmt.Errorf("merge pulled events: %w", err)
		}
		res.add(len(rows), counts)
		return len(rows), nil
	})
	metrics.RecordPull("event", res.Inserted, res.Updated, res.Unchanged)
	if err != nil {
		return res, fmt.Errorf("pull life events: %w", err)
	}
	return res, nil
}

// pages drives fetch from offset zero until a short page.
func (e *Engine) pages(ctx context.Context, window Range, fetch func(ctx context.Context, token string, w backend.Window) (int, error)) error {
	w := backend.Window{Start: window.Start, End: window.End, Limit: e.pageSize}
	for page := 0; page < maxPullPages; page++ {
		var n int
		err := e.session.Do(ctx, func(ctx context.Context, token string) error {
			var err error
			n, err = fetch(ctx, token, w)
			return err
		})
		if err != nil {
			return fmt.Errorf("page at offset %d: %w", w.Offset, err)
		}
		if n < e.pageSize {
			return nil
		}
		w.Offset += n
	}
	return fmt.Errorf("window %s..%s exceeded %d pages", window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), maxPullPages)
}
