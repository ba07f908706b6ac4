// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/validation"
)

// EventStore persists life events.
type EventStore interface {
	InsertEvent(ctx context.Context, e *models.Event) error
	StartRange(ctx context.Context, e *models.Event) error
	ActiveRange(ctx context.Context, user string) (*models.Event, error)
	EndRange(ctx context.Context, user, id string, end time.Time) (*models.Event, error)
	GetEvent(ctx context.Context, user, id string) (*models.Event, error)
	DeleteEvent(ctx context.Context, user, id string) error
}

// RemoteDeleter removes an event the server already has.
type RemoteDeleter func(ctx context.Context, id string) error

// EventRequest describes a mark or a range start.
type EventRequest struct {
	Label     string          `json:"label" validate:"required,max=200"`
	Note      string          `json:"note,omitempty" validate:"max=4000"`
	At        *time.Time      `json:"at,omitempty"`
	Latitude  *float64        `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64        `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Events creates and closes life events.
type Events struct {
	store  EventStore
	remote RemoteDeleter
	now    func() time.Time
	newID  func() string
}

// NewEvents builds an event recorder. remote may be nil, in which case
// deletes stay local.
func NewEvents(st EventStore, remote RemoteDeleter) *Events {
	return &Events{
		store:  st,
		remote: remote,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Mark records an instant.
func (e *Events) Mark(ctx context.Context, user string, req EventRequest) (*models.Event, error) {
	ev, err := e.build(user, models.EventPoint, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	logging.Info().Str("client_event_id", ev.ClientEventID).Msg("Event marked")
	return ev, nil
}

// StartRange opens a range. It fails with *store.ActiveRangeError if the
// user already has one open.
func (e *Events) StartRange(ctx context.Context, user string, req EventRequest) (*models.Event, error) {
	ev, err := e.build(user, models.EventRange, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.StartRange(ctx, ev); err != nil {
		return nil, fmt.Errorf("start range: %w", err)
	}
	logging.Info().Str("client_event_id", ev.ClientEventID).Msg("Range started")
	return ev, nil
}

// EndActiveRange closes the user's open range at "at", or now when at is
// nil. store.ErrNotFound means no range is open.
func (e *Events) EndActiveRange(ctx context.Context, user string, at *time.Time) (*models.Event, error) {
	active, err := e.store.ActiveRange(ctx, user)
	if err != nil {
		return nil, err
	}
	end := e.now()
	if at != nil {
		end = *at
	}
	ev, err := e.store.EndRange(ctx, user, active.ClientEventID, end)
	if err != nil {
		return nil, fmt.Errorf("end range: %w", err)
	}
	logging.Info().Str("client_event_id", ev.ClientEventID).Msg("Range ended")
	return ev, nil
}

// Delete removes an event locally, and remotely first when it was ever
// acknowledged by the server.
func (e *Events) Delete(ctx context.Context, user, id string) error {
	ev, err := e.store.GetEvent(ctx, user, id)
	if err != nil {
		return err
	}
	if e.remote != nil && ev.Sync.LastSyncedAt != nil {
		if err := e.remote(ctx, id); err != nil {
			return fmt.Errorf("delete remote event: %w", err)
		}
	}
	return e.store.DeleteEvent(ctx, user, id)
}

func (e *Events) build(user string, kind models.EventType, req EventRequest) (*models.Event, error) {
	start := e.now().UTC()
	if req.At != nil {
		start = req.At.UTC()
	}
	ev := &models.Event{
		UserID: user,
		LifeEvent: models.LifeEvent{
			ClientEventID: e.newID(),
			EventType:     kind,
			StartAt:       start,
			Label:         req.Label,
			Note:          req.Note,
			Latitude:      req.Latitude,
			Longitude:     req.Longitude,
			Payload:       req.Payload,
		},
	}
	if verr := validation.ValidateStruct(&ev.LifeEvent); verr != nil {
		return nil, verr
	}
	return ev, nil
}
