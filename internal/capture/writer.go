// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package capture

import (
	"context"
	"errors"

	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

const defaultBuffer = 256

// PointStore persists captured points.
type PointStore interface {
	InsertPoint(ctx context.Context, p *models.Point) error
}

// Writer drains captured points into the store. It implements
// suture.Service; Enqueue never blocks the capture path.
type Writer struct {
	store PointStore
	queue chan *models.Point
}

// NewWriter returns a writer with room for buffer points in flight.
func NewWriter(st PointStore, buffer int) *Writer {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Writer{store: st, queue: make(chan *models.Point, buffer)}
}

// Enqueue hands p to the writer. It returns false and drops p when the
// buffer is full.
func (w *Writer) Enqueue(p *models.Point) bool {
	select {
	case w.queue <- p:
		return true
	default:
		metrics.CapturedPoints.WithLabelValues("dropped").Inc()
		logging.Warn().Str("client_point_id", p.ClientPointID).Msg("Capture buffer full, fix dropped")
		return false
	}
}

// Serve writes queued points until ctx is canceled, then flushes what is
// already buffered.
func (w *Writer) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case p := <-w.queue:
			w.write(context.WithoutCancel(ctx), p)
		}
	}
}

func (w *Writer) String() string {
	return "capture-writer"
}

func (w *Writer) flush(ctx context.Context) {
	for {
		select {
		case p := <-w.queue:
			w.write(ctx, p)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, p *models.Point) {
	err := w.store.InsertPoint(ctx, p)
	switch {
	case err == nil:
		metrics.CapturedPoints.WithLabelValues("stored").Inc()
	case errors.Is(err, store.ErrDuplicate):
		metrics.CapturedPoints.WithLabelValues("duplicate").Inc()
	default:
		metrics.CapturedPoints.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("client_point_id", p.ClientPointID).Msg("Failed to store captured fix")
	}
}
