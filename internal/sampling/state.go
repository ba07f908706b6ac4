// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package sampling turns motion and location signals into a motion state and
// a sampling profile. It performs no I/O and is safe to call from the
// goroutine that delivers location callbacks.
package sampling

// State is an inferred motion state.
type State string

const (
	StateIdle       State = "IDLE"
	StateStationary State = "STATIONARY"
	StateWalking    State = "WALKING"
	StateRunning    State = "RUNNING"
	StateCycling    State = "CYCLING"
	StateDriving    State = "DRIVING"
	StateUnknown    State = "UNKNOWN"
)

// Activity is a coarse activity classification from the platform recognizer.
type Activity string

const (
	ActivityNone      Activity = ""
	ActivityStill     Activity = "STILL"
	ActivityWalking   Activity = "WALKING"
	ActivityRunning   Activity = "RUNNING"
	ActivityOnBicycle Activity = "ON_BICYCLE"
	ActivityInVehicle Activity = "IN_VEHICLE"
)

var activityStates = map[Activity]State{
	ActivityStill:     StateStationary,
	ActivityWalking:   StateWalking,
	ActivityRunning:   StateRunning,
	ActivityOnBicycle: StateCycling,
	ActivityInVehicle: StateDriving,
}

// State returns the motion state a classification maps to.
func (a Activity) State() (State, bool) {
	s, ok := activityStates[a]
	return s, ok
}

// Profile is the location request cadence for a state. The zero Profile
// means no active request.
type Profile struct {
	IntervalSeconds   int     `json:"interval_seconds"`
	MinDistanceMeters float64 `json:"min_distance_meters"`
}

// Active reports whether the profile requests location updates.
func (p Profile) Active() bool {
	return p.IntervalSeconds > 0
}

var profiles = map[State]Profile{
	StateStationary: {IntervalSeconds: 120, MinDistanceMeters: 50},
	StateWalking:    {IntervalSeconds: 5, MinDistanceMeters: 5},
	StateRunning:    {IntervalSeconds: 3, MinDistanceMeters: 3},
	StateCycling:    {IntervalSeconds: 3, MinDistanceMeters: 5},
	StateDriving:    {IntervalSeconds: 5, MinDistanceMeters: 20},
	StateUnknown:    {IntervalSeconds: 10, MinDistanceMeters: 10},
}

// ProfileFor returns the sampling profile for s. IDLE has none.
func ProfileFor(s State) Profile {
	return profiles[s]
}

// ProfileTracker remembers the profile currently registered with the
// location provider.
type ProfileTracker struct {
	current Profile
}

// Update records p and reports whether the provider must re-register.
func (t *ProfileTracker) Update(p Profile) bool {
	if p == t.current {
		return false
	}
	t.current = p
	return true
}

// Current returns the profile in effect.
func (t *ProfileTracker) Current() Profile {
	return t.current
}
