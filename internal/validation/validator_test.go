// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/tracksync/internal/models"
)

func f64(v float64) *float64 { return &v }

func validPoint() models.TrackPoint {
	return models.TrackPoint{
		ClientPointID: "0b6f1f0e-1d2c-4d8e-9b51-0f4b8f3b7a10",
		RecordedAt:    time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		Latitude:      31.23,
		Longitude:     121.47,
		Accuracy:      f64(6),
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()
	if GetValidator() != GetValidator() {
		t.Error("GetValidator must return the same instance")
	}
}

func TestValidateTrackPoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*models.TrackPoint)
		reason string
	}{
		{"valid", func(*models.TrackPoint) {}, ""},
		{"missing accuracy", func(p *models.TrackPoint) { p.Accuracy = nil }, "missing_accuracy"},
		{"missing id", func(p *models.TrackPoint) { p.ClientPointID = "" }, "missing_client_point_id"},
		{"latitude out of range", func(p *models.TrackPoint) { p.Latitude = 95 }, "invalid_latitude"},
		{"bearing 360", func(p *models.TrackPoint) { p.Bearing = f64(360) }, "invalid_bearing"},
		{"negative speed", func(p *models.TrackPoint) { p.Speed = f64(-1) }, "invalid_speed"},
		{"bad transform status", func(p *models.TrackPoint) { p.TransformStatus = "MAYBE" }, "invalid_coord_transform_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPoint()
			tt.mutate(&p)
			verr := ValidateStruct(&p)
			if tt.reason == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if got := verr.ReasonCode(); !strings.HasPrefix(got, tt.reason) {
				t.Errorf("ReasonCode() = %q, want prefix %q", got, tt.reason)
			}
		})
	}
}

func TestValidateLifeEventRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	after := start.Add(time.Hour)

	tests := []struct {
		name    string
		typ     models.EventType
		end     *time.Time
		wantTag string
	}{
		{"open range", models.EventRange, nil, ""},
		{"closed range", models.EventRange, &after, ""},
		{"range ends before start", models.EventRange, &before, "after_start"},
		{"point with end", models.EventPoint, &after, "range_only"},
		{"bad type", "SPAN", nil, "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := models.LifeEvent{ClientEventID: "e1", EventType: tt.typ, StartAt: start, EndAt: tt.end, Label: "commute"}
			verr := ValidateStruct(&ev)
			if tt.wantTag == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil || verr.Errors()[0].Tag() != tt.wantTag {
				t.Fatalf("ValidateStruct() = %v, want tag %s", verr, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	req := models.LoginRequest{}
	verr := ValidateStruct(&req)
	if verr == nil {
		t.Fatal("empty login must fail")
	}
	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("two failures should list fields, got %+v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "username is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}
