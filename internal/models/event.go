// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType distinguishes instants from intervals.
type EventType string

const (
	EventPoint EventType = "POINT"
	EventRange EventType = "RANGE"
)

// LifeEvent is the payload of a user-declared mark, matching /life-events.
type LifeEvent struct {
	ClientEventID string     `json:"client_event_id" validate:"required"`
	EventType     EventType  `json:"event_type" validate:"oneof=POINT RANGE"`
	StartAt       time.Time  `json:"start_at" validate:"required"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Label         string     `json:"label" validate:"required,max=200"`
	Note          string     `json:"note,omitempty" validate:"max=4000"`
	Latitude      *float64   `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64   `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsOpenRange reports whether the event is an in-progress interval.
func (e *LifeEvent) IsOpenRange() bool {
	return e.EventType == EventRange && e.EndAt == nil
}

// Event is a queued life event.
type Event struct {
	UserID string `json:"user_id"`
	LifeEvent
	Sync SyncState `json:"sync"`
}

// Key returns the idempotency key.
func (e *Event) Key() string {
	return e.ClientEventID
}
