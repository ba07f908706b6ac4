// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"time"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

// Remote is the part of the backend contract the engines call.
type Remote interface {
	UploadBatch(ctx context.Context, token string, items []models.TrackPoint) (*models.Receipt, error)
	QueryTracks(ctx context.Context, token string, w backend.Window) (*models.TrackQueryResponse, error)
	ListLifeEvents(ctx context.Context, token string, w backend.Window) (*models.LifeEventListResponse, error)
	PutLifeEvent(ctx context.Context, token string, ev models.LifeEvent) error
}

// Session runs calls with the stored credentials.
type Session interface {
	Do(ctx context.Context, fn func(ctx context.Context, token string) error) error
	Subject(ctx context.Context) string
	LoggedIn(ctx context.Context) bool
	Logout(ctx context.Context) error
}

// Range is a UTC [Start, End) interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// Engine uploads and pulls rows for one user at a time.
type Engine struct {
	store    *store.Store
	remote   Remote
	session  Session
	maxBatch int
	pageSize int
	now      func() time.Time
}

// NewEngine builds an engine with batch and page sizes from cfg.
func NewEngine(st *store.Store, remote Remote, session Session, cfg config.SyncConfig) *Engine {
	e := &Engine{
		store:    st,
		remote:   remote,
		session:  session,
		maxBatch: cfg.MaxBatch,
		pageSize: cfg.PageSize,
		now:      time.Now,
	}
	if e.maxBatch <= 0 {
		e.maxBatch = 100
	}
	if e.pageSize <= 0 {
		e.pageSize = 500
	}
	return e
}

// SetClock replaces the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// MaxBatch is the upload batch cap.
func (e *Engine) MaxBatch() int {
	return e.maxBatch
}
