// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sampling

import "time"

// Speed thresholds in meters per second.
const (
	walkSpeed  = 0.5
	runSpeed   = 2.5
	driveSpeed = 8.3
	slowSpeed  = 2.0
	stillSpeed = 0.5
)

// Sustain windows for speed-driven transitions.
const (
	enterWalk  = 10 * time.Second
	enterRun   = 10 * time.Second
	enterDrive = 30 * time.Second
	fallSlow   = 30 * time.Second
	fallStill  = 120 * time.Second

	// From IDLE or UNKNOWN there is no motion history, so a short hold
	// of any speed band is enough.
	enterFromUnknown = 10 * time.Second
)

// Options tunes a Machine. Zero fields take defaults.
type Options struct {
	Debounce          time.Duration
	GPSGrace          time.Duration
	AccuracyThreshold float64
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		Debounce:          4 * time.Second,
		GPSGrace:          30 * time.Second,
		AccuracyThreshold: 100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.GPSGrace <= 0 {
		o.GPSGrace = d.GPSGrace
	}
	if o.AccuracyThreshold <= 0 {
		o.AccuracyThreshold = d.AccuracyThreshold
	}
	return o
}

// Input is one motion sample.
type Input struct {
	Now                time.Time
	Capturing          bool
	GPSAvailable       bool
	Speed              *float64
	Accuracy           *float64
	ActivityPermission bool
	Activity           Activity
}

// Output is the result of a step.
type Output struct {
	State   State
	Profile Profile
}

// since tracks when a condition started holding. The zero value means the
// condition does not currently hold.
type since struct {
	at time.Time
	ok bool
}

func (s *since) observe(cond bool, now time.Time) {
	switch {
	case !cond:
		*s = since{}
	case !s.ok:
		*s = since{at: now, ok: true}
	}
}

func (s since) held(now time.Time, d time.Duration) bool {
	return s.ok && now.Sub(s.at) >= d
}

// Machine is the sampling state machine. A Machine is not safe for
// concurrent use; each producer session owns one.
type Machine struct {
	opts  Options
	state State

	candidate      State
	candidateSince time.Time

	gpsLost     since
	accDegraded since

	walk  since
	run   since
	drive since
	slow  since
	still since
}

// NewMachine returns a Machine in IDLE.
func NewMachine(opts Options) *Machine {
	return &Machine{opts: opts.withDefaults(), state: StateIdle}
}

// State returns the committed state.
func (m *Machine) State() State {
	return m.state
}

// Step consumes one sample and returns the committed state and profile.
func (m *Machine) Step(in Input) Output {
	if !in.Capturing {
		m.reset()
		return m.output()
	}

	m.observeSignal(in)
	next := m.candidateFor(in)
	m.debounce(next, in.Now)
	return m.output()
}

func (m *Machine) reset() {
	opts := m.opts
	*m = Machine{opts: opts, state: StateIdle}
}

func (m *Machine) output() Output {
	return Output{State: m.state, Profile: ProfileFor(m.state)}
}

func (m *Machine) observeSignal(in Input) {
	now := in.Now
	m.gpsLost.observe(!in.GPSAvailable, now)
	m.accDegraded.observe(in.Accuracy != nil && *in.Accuracy > m.opts.AccuracyThreshold, now)

	hasSpeed := in.GPSAvailable && in.Speed != nil
	var v float64
	if hasSpeed {
		v = *in.Speed
	}
	m.walk.observe(hasSpeed && v >= walkSpeed, now)
	m.run.observe(hasSpeed && v > runSpeed, now)
	m.drive.observe(hasSpeed && v > driveSpeed, now)
	m.slow.observe(hasSpeed && v < slowSpeed, now)
	m.still.observe(hasSpeed && v < stillSpeed, now)
}

func (m *Machine) candidateFor(in Input) State {
	grace := m.opts.GPSGrace
	if m.gpsLost.held(in.Now, grace) || m.accDegraded.held(in.Now, grace) {
		return StateUnknown
	}
	if in.ActivityPermission {
		if s, ok := in.Activity.State(); ok {
			return s
		}
	}
	return m.inferFromSpeed(in.Now)
}

// inferFromSpeed returns the speed-implied state relative to the committed
// state, or the committed state when no transition is sustained.
func (m *Machine) inferFromSpeed(now time.Time) State {
	if m.state != StateDriving && m.drive.held(now, enterDrive) {
		return StateDriving
	}

	switch m.state {
	case StateStationary:
		if m.walk.held(now, enterWalk) {
			return StateWalking
		}
	case StateWalking:
		if m.run.held(now, enterRun) {
			return StateRunning
		}
		if m.still.held(now, fallStill) {
			return StateStationary
		}
	case StateRunning, StateCycling, StateDriving:
		if m.still.held(now, fallStill) {
			return StateStationary
		}
		if m.slow.held(now, fallSlow) {
			return StateWalking
		}
	case StateIdle, StateUnknown:
		switch {
		case m.run.held(now, enterFromUnknown):
			return StateRunning
		case m.walk.held(now, enterFromUnknown):
			return StateWalking
		case m.still.held(now, enterFromUnknown):
			return StateStationary
		}
	}
	return m.state
}

func (m *Machine) debounce(next State, now time.Time) {
	if next == m.state {
		m.candidate = ""
		return
	}
	if next != m.candidate {
		m.candidate = next
		m.candidateSince = now
		return
	}
	if now.Sub(m.candidateSince) >= m.opts.Debounce {
		m.state = next
		m.candidate = ""
	}
}
