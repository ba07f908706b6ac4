// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

import "time"

// TransformStatus records the outcome of the WGS84 to GCJ02 conversion.
type TransformStatus string

const (
	TransformOK        TransformStatus = "OK"
	TransformOutsideCN TransformStatus = "OUTSIDE_CN"
	TransformBypass    TransformStatus = "BYPASS"
	TransformFailed    TransformStatus = "FAILED"
)

// TrackPoint is the immutable payload of a captured fix. Field names match the
// /tracks/batch and /tracks/query wire format.
type TrackPoint struct {
	ClientPointID string    `json:"client_point_id" validate:"required"`
	RecordedAt    time.Time `json:"recorded_at" validate:"required"`
	Latitude      float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64   `json:"longitude" validate:"gte=-180,lte=180"`

	GCJ02Latitude   *float64        `json:"gcj02_latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	GCJ02Longitude  *float64        `json:"gcj02_longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	TransformStatus TransformStatus `json:"coord_transform_status,omitempty" validate:"omitempty,oneof=OK OUTSIDE_CN BYPASS FAILED"`

	// Accuracy is optional on the wire but a fix without it cannot be uploaded.
	Accuracy *float64 `json:"accuracy,omitempty" validate:"required,gte=0"`
	Altitude *float64 `json:"altitude,omitempty"`
	Speed    *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Bearing  *float64 `json:"bearing,omitempty" validate:"omitempty,gte=0,lt=360"`

	GeomHash  string `json:"geom_hash,omitempty"`
	StepCount *int64 `json:"step_count,omitempty" validate:"omitempty,gte=0"`
	StepDelta *int64 `json:"step_delta,omitempty" validate:"omitempty,gte=0"`
}

// Point is a queued fix: payload plus its per-row sync state.
type Point struct {
	UserID string `json:"user_id"`
	TrackPoint
	Sync SyncState `json:"sync"`
}

// Key returns the idempotency key.
func (p *Point) Key() string {
	return p.ClientPointID
}
