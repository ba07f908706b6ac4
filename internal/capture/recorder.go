// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/geo"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/sampling"
)

// Sample is one location callback. HasFix is false for motion-only
// updates such as an activity change without a position.
type Sample struct {
	At     time.Time `json:"at" validate:"required"`
	HasFix bool      `json:"has_fix"`

	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Bearing   *float64 `json:"bearing,omitempty" validate:"omitempty,gte=0,lt=360"`

	GPSAvailable       bool              `json:"gps_available"`
	ActivityPermission bool              `json:"activity_permission"`
	Activity           sampling.Activity `json:"activity,omitempty"`
	StepCount          *int64            `json:"step_count,omitempty" validate:"omitempty,gte=0"`
}

// Decision is what the caller must do after a sample.
type Decision struct {
	State   sampling.State   `json:"state"`
	Profile sampling.Profile `json:"profile"`

	// Reregister is set when the location request must be replaced with
	// Profile. An inactive Profile means stop requesting updates.
	Reregister bool `json:"reregister"`

	// PointID is the id of the kept fix, empty when the fix was filtered.
	PointID string `json:"point_id,omitempty"`
}

// Sink accepts kept points without blocking.
type Sink interface {
	Enqueue(p *models.Point) bool
}

// Recorder is safe for concurrent use, though samples are expected from a
// single callback goroutine.
type Recorder struct {
	sink  Sink
	user  func() string
	gcj02 bool
	newID func() string

	mu        sync.Mutex
	capturing bool
	machine   *sampling.Machine
	tracker   sampling.ProfileTracker
	last      *models.TrackPoint
	lastSteps *int64
}

// NewRecorder builds a recorder. user returns the id that scopes new rows.
func NewRecorder(sink Sink, user func() string, samplingCfg config.SamplingConfig, captureCfg config.CaptureConfig) *Recorder {
	return &Recorder{
		sink:  sink,
		user:  user,
		gcj02: captureCfg.GCJ02,
		newID: func() string { return uuid.New().String() },
		machine: sampling.NewMachine(sampling.Options{
			Debounce:          samplingCfg.Debounce,
			GPSGrace:          samplingCfg.GPSGrace,
			AccuracyThreshold: samplingCfg.AccuracyThreshold,
		}),
	}
}

// SetCapturing turns capture on or off and returns the profile the
// producer must register now. Turning it off resets the machine to IDLE on
// the next sample.
func (r *Recorder) SetCapturing(on bool) sampling.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = on
	if !on {
		r.last = nil
		r.lastSteps = nil
	}
	state := r.machine.State()
	if !on {
		state = sampling.StateIdle
	}
	p := r.requested(state)
	r.tracker.Update(p)
	logging.Info().Bool("capturing", on).Int("interval_seconds", p.IntervalSeconds).Msg("Capture toggled")
	return p
}

// requested is the profile to register for state. IDLE has no profile of
// its own, but the machine needs fixes to leave it, so while capturing the
// UNKNOWN profile is requested until a motion state commits.
func (r *Recorder) requested(state sampling.State) sampling.Profile {
	if r.capturing && state == sampling.StateIdle {
		return sampling.ProfileFor(sampling.StateUnknown)
	}
	return sampling.ProfileFor(state)
}

// Capturing reports whether capture is on.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// OnSample steps the sampling machine and keeps the fix when the state is
// active and the position moved at least the profile's minimum distance.
func (r *Recorder) OnSample(s Sample) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.machine.State()
	out := r.machine.Step(sampling.Input{
		Now:                s.At,
		Capturing:          r.capturing,
		GPSAvailable:       s.GPSAvailable,
		Speed:              s.Speed,
		Accuracy:           s.Accuracy,
		ActivityPermission: s.ActivityPermission,
		Activity:           s.Activity,
	})
	if out.State != prev {
		metrics.SamplingTransitions.WithLabelValues(string(prev), string(out.State)).Inc()
		logging.Debug().Str("from", string(prev)).Str("to", string(out.State)).Msg("Motion state changed")
	}

	requested := r.requested(out.State)
	d := Decision{
		State:      out.State,
		Profile:    requested,
		Reregister: r.tracker.Update(requested),
	}
	if !s.HasFix || !r.capturing || !out.Profile.Active() {
		return d
	}
	if !geo.ValidCoordinate(s.Latitude, s.Longitude) {
		metrics.CapturedPoints.WithLabelValues("filtered").Inc()
		return d
	}
	if r.last != nil && geo.Haversine(r.last.Latitude, r.last.Longitude, s.Latitude, s.Longitude) < out.Profile.MinDistanceMeters {
		metrics.CapturedPoints.WithLabelValues("filtered").Inc()
		return d
	}

	p := r.buildPoint(s)
	if !r.sink.Enqueue(p) {
		return d
	}
	r.last = &p.TrackPoint
	d.PointID = p.ClientPointID
	return d
}

func (r *Recorder) buildPoint(s Sample) *models.Point {
	tp := models.TrackPoint{
		ClientPointID: r.newID(),
		RecordedAt:    s.At.UTC(),
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		Accuracy:      s.Accuracy,
		Altitude:      s.Altitude,
		Speed:         s.Speed,
		Bearing:       s.Bearing,
		GeomHash:      geo.GeometryHash(s.Latitude, s.Longitude),
	}

	if r.gcj02 {
		lat, lon, status := geo.ToGCJ02(s.Latitude, s.Longitude)
		tp.TransformStatus = status
		if status == models.TransformOK {
			tp.GCJ02Latitude, tp.GCJ02Longitude = &lat, &lon
		}
	} else {
		tp.TransformStatus = models.TransformBypass
	}

	if s.StepCount != nil {
		steps := *s.StepCount
		tp.StepCount = &steps
		if r.lastSteps != nil && steps >= *r.lastSteps {
			delta := steps - *r.lastSteps
			tp.StepDelta = &delta
		}
		r.lastSteps = &steps
	}

	return &models.Point{UserID: r.user(), TrackPoint: tp}
}
