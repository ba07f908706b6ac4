// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

// Action is a logical orchestrator trigger.
type Action string

const (
	ActionSync            Action = "SYNC"
	ActionBootstrapRecent Action = "BOOTSTRAP_RECENT"
	ActionBackfillStep    Action = "BACKFILL_STEP"
	ActionUpload          Action = "UPLOAD"
	ActionPull24h         Action = "PULL_24H"
	ActionPullIncremental Action = "PULL_INCREMENTAL"
)

// ErrUnknownAction is returned for names outside Actions.
var ErrUnknownAction = errors.New("unknown sync action")

// Actions lists every action.
var Actions = []Action{
	ActionSync, ActionBootstrapRecent, ActionBackfillStep,
	ActionUpload, ActionPull24h, ActionPullIncremental,
}

// ParseAction accepts action names in any case, with '-' for '_'.
func ParseAction(s string) (Action, error) {
	name := Action(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	for _, a := range Actions {
		if a == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownAction, s)
}

var allPhases = []string{
	string(models.PhaseIdle),
	string(models.PhaseBootstrapRecent),
	string(models.PhaseBackfilling),
	string(models.PhasePaused),
	string(models.PhaseUpToDate),
	string(models.PhaseError),
}

// pullOverlap re-reads the tail of the previous incremental pull to cover
// rows the server committed late.
const pullOverlap = 10 * time.Minute

// Result describes one action invocation.
type Result struct {
	Action    Action
	Outcome   Outcome
	FollowUps []Action
	Err       error
	Duration  time.Duration
}

// Orchestrator sequences the engines and owns the persisted phase. Every
// action runs under the guard.
type Orchestrator struct {
	store   *store.Store
	engine  *Engine
	session Session
	guard   *Guard
	planner Planner

	syncEvents     bool
	emptyThreshold int
	configBound    *time.Time

	onReauth func(ctx context.Context, err error)
	now      func() time.Time
}

// NewOrchestrator wires an orchestrator. The guard is shared with anything
// else that must not run concurrently with sync.
func NewOrchestrator(st *store.Store, engine *Engine, session Session, guard *Guard, cfg config.SyncConfig) *Orchestrator {
	o := &Orchestrator{
		store:          st,
		engine:         engine,
		session:        session,
		guard:          guard,
		planner:        NewPlanner(cfg),
		syncEvents:     cfg.SyncEvents,
		emptyThreshold: cfg.EmptyWindowThreshold,
		now:            time.Now,
	}
	if o.emptyThreshold <= 0 {
		o.emptyThreshold = 12
	}
	if b, ok := cfg.BackfillLowerBound(); ok {
		o.configBound = &b
	}
	return o
}

// SetReauthHook registers fn to be told when the session ended and the
// user must sign in again.
func (o *Orchestrator) SetReauthHook(fn func(ctx context.Context, err error)) {
	o.onReauth = fn
}

// SetClock replaces the time source. Tests only.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	o.engine.SetClock(now)
}

// Run waits for the guard and executes a.
func (o *Orchestrator) Run(ctx context.Context, a Action) Result {
	return o.run(ctx, a, o.guard.Run)
}

// TryRun executes a only if no other run holds the guard.
func (o *Orchestrator) TryRun(ctx context.Context, a Action) Result {
	return o.run(ctx, a, o.guard.TryRun)
}

func (o *Orchestrator) run(ctx context.Context, a Action, enter func(context.Context, func(context.Context) error) error) Result {
	ctx = logging.ContextWithRunID(ctx, logging.GenerateCorrelationID())
	started := time.Now()
	res := Result{Action: a}
	loggedIn := true

	err := enter(ctx, func(ctx context.Context) error {
		if !o.session.LoggedIn(ctx) {
			loggedIn = false
			return nil
		}
		user := o.session.Subject(ctx)
		followUps, err := o.execute(ctx, a, user)
		res.FollowUps = followUps
		if err != nil {
			o.recordFailure(ctx, a, err)
		}
		o.publishQueueDepth(ctx, user)
		return err
	})

	res.Err = err
	res.Outcome = Classify(err)
	if !loggedIn {
		res.Outcome = OutcomeSkipped
	}
	res.Duration = time.Since(started)
	metrics.RecordSyncRun(string(a), string(res.Outcome), res.Duration)

	log := logging.Ctx(ctx)
	switch res.Outcome {
	case OutcomeSuccess:
		log.Info().Str("action", string(a)).Dur("duration", res.Duration).Msg("Sync action completed")
	case OutcomeSkipped:
		log.Debug().Str("action", string(a)).Bool("logged_in", loggedIn).Err(err).Msg("Sync action skipped")
	case OutcomeRetry:
		log.Warn().Str("action", string(a)).Err(err).Msg("Sync action failed, will retry")
	case OutcomeFatal:
		log.Error().Str("action", string(a)).Err(err).Msg("Sync action failed with a fatal authorization error")
	}
	return res
}

func (o *Orchestrator) execute(ctx context.Context, a Action, user string) ([]Action, error) {
	now := o.now().UTC()
	switch a {
	case ActionUpload:
		full, err := o.upload(ctx, user)
		if err != nil || !full {
			return nil, err
		}
		return []Action{ActionUpload}, nil

	case ActionSync:
		full, err := o.upload(ctx, user)
		if err != nil {
			return nil, err
		}
		meta, err := o.store.LoadMeta(ctx)
		if err != nil {
			return nil, err
		}
		var next []Action
		if meta.BackfillCursor == nil {
			next = append(next, ActionBootstrapRecent)
		} else if err := o.pullIncremental(ctx, user, meta, now); err != nil {
			return nil, err
		}
		if full {
			next = append(next, ActionUpload)
		}
		return next, nil

	case ActionPull24h:
		if _, err := o.pull(ctx, user, Range{Start: now.Add(-24 * time.Hour), End: now}); err != nil {
			return nil, err
		}
		return nil, o.markPulled(ctx, now, "Last 24 hours synced")

	case ActionPullIncremental:
		meta, err := o.store.LoadMeta(ctx)
		if err != nil {
			return nil, err
		}
		return nil, o.pullIncremental(ctx, user, meta, now)

	case ActionBootstrapRecent:
		return o.bootstrap(ctx, user, now)

	case ActionBackfillStep:
		return o.backfillStep(ctx, user)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownAction, a)
}

// upload sends one batch of points and, when enabled, one of events. full
// reports whether either hit the cap.
func (o *Orchestrator) upload(ctx context.Context, user string) (bool, error) {
	res, err := o.engine.Upload(ctx, user)
	if err != nil {
		return false, err
	}
	full := res.Full
	sent := res.Sent
	if o.syncEvents {
		ev, err := o.engine.UploadEvents(ctx, user)
		if err != nil {
			return false, err
		}
		full = full || ev.Full
		sent += ev.Sent
	}

	now := o.now().UTC()
	_, err = o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.LastUploadAt = &now
		m.LastError = ""
		if sent > 0 {
			m.Progress = fmt.Sprintf("Uploaded %d records", sent)
		}
	})
	return full, err
}

func (o *Orchestrator) pull(ctx context.Context, user string, r Range) (int, error) {
	res, err := o.engine.Pull(ctx, user, r)
	if err != nil {
		return 0, err
	}
	fetched := res.Fetched
	if o.syncEvents {
		ev, err := o.engine.PullEvents(ctx, user, r)
		if err != nil {
			return 0, err
		}
		fetched += ev.Fetched
	}
	return fetched, nil
}

func (o *Orchestrator) pullIncremental(ctx context.Context, user string, meta models.SyncMeta, now time.Time) error {
	start := now.Add(-24 * time.Hour)
	if meta.LastPullAt != nil {
		start = meta.LastPullAt.Add(-pullOverlap)
	}
	if _, err := o.pull(ctx, user, Range{Start: start, End: now}); err != nil {
		return err
	}
	return o.markPulled(ctx, now, "")
}

func (o *Orchestrator) markPulled(ctx context.Context, at time.Time, progress string) error {
	_, err := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.LastPullAt = &at
		m.LastError = ""
		if progress != "" {
			m.Progress = progress
		}
	})
	return err
}

// bootstrap uploads first so a pull of the same range cannot shadow rows
// captured offline, then pulls the recent range and seeds the cursor.
func (o *Orchestrator) bootstrap(ctx context.Context, user string, now time.Time) ([]Action, error) {
	if err := o.setPhase(ctx, models.PhaseBootstrapRecent, "Syncing recent history"); err != nil {
		return nil, err
	}
	full, err := o.upload(ctx, user)
	if err != nil {
		return nil, err
	}

	r := o.planner.BootstrapRecentRange(now)
	if _, err := o.pull(ctx, user, r); err != nil {
		return nil, err
	}

	var next []Action
	meta, err := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.LastPullAt = &now
		m.LastError = ""
		if m.BackfillCursor == nil || r.Start.Before(*m.BackfillCursor) {
			start := r.Start
			m.BackfillCursor = &start
		}
		m.EmptyWindowStreak = 0
		m.Progress = fmt.Sprintf("Last %d days synced", o.planner.BootstrapDays)
		bound := o.lowerBound(*m)
		switch {
		case bound != nil && !m.BackfillCursor.After(*bound):
			m.Phase = models.PhaseUpToDate
		case !m.BackfillEnabled:
			m.Phase = models.PhasePaused
		default:
			m.Phase = models.PhaseBackfilling
			next = append(next, ActionBackfillStep)
		}
	})
	if err != nil {
		return nil, err
	}
	o.publishMeta(meta)
	if full {
		next = append(next, ActionUpload)
	}
	return next, nil
}

// backfillStep pulls the next window below the cursor and advances the
// cursor only once the pull succeeded.
func (o *Orchestrator) backfillStep(ctx context.Context, user string) ([]Action, error) {
	meta, err := o.store.LoadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta.BackfillCursor == nil {
		return []Action{ActionBootstrapRecent}, nil
	}
	if !meta.BackfillEnabled {
		if meta.Phase != models.PhaseUpToDate {
			return nil, o.setPhase(ctx, models.PhasePaused, "")
		}
		return nil, nil
	}

	bound := o.lowerBound(meta)
	w, ok := o.planner.NextBackfillWindow(*meta.BackfillCursor, bound)
	if !ok {
		return nil, o.setPhase(ctx, models.PhaseUpToDate, "History complete")
	}
	if err := o.setPhase(ctx, models.PhaseBackfilling, "Backfilling from "+w.Start.Format("2006-01-02")); err != nil {
		return nil, err
	}

	fetched, err := o.pull(ctx, user, w)
	if err != nil {
		return nil, err
	}

	var next []Action
	meta, err = o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		if m.BackfillCursor == nil || w.Start.Before(*m.BackfillCursor) {
			start := w.Start
			m.BackfillCursor = &start
		}
		m.LastError = ""
		bound := o.lowerBound(*m)
		if fetched == 0 && bound == nil {
			m.EmptyWindowStreak++
		} else {
			m.EmptyWindowStreak = 0
		}

		switch {
		case bound != nil && !m.BackfillCursor.After(*bound):
			m.Phase = models.PhaseUpToDate
			m.Progress = "History complete"
		case bound == nil && m.EmptyWindowStreak >= o.emptyThreshold:
			m.BackfillEnabled = false
			m.Phase = models.PhasePaused
			m.Progress = fmt.Sprintf("Backfill paused after %d empty windows", m.EmptyWindowStreak)
		case !m.BackfillEnabled:
			m.Phase = models.PhasePaused
		default:
			m.Phase = models.PhaseBackfilling
			m.Progress = "Synced back to " + m.BackfillCursor.Format("2006-01-02")
			next = append(next, ActionBackfillStep)
		}
	})
	if err != nil {
		return nil, err
	}
	o.publishMeta(meta)
	logging.Ctx(ctx).Info().
		Time("window_start", w.Start).
		Time("window_end", w.End).
		Int("fetched", fetched).
		Int("empty_streak", meta.EmptyWindowStreak).
		Str("phase", string(meta.Phase)).
		Msg("Backfill step completed")
	return next, nil
}

// lowerBound prefers a bound set at runtime over the configured one.
func (o *Orchestrator) lowerBound(m models.SyncMeta) *time.Time {
	if m.BackfillLowerBound != nil {
		return m.BackfillLowerBound
	}
	return o.configBound
}

func (o *Orchestrator) setPhase(ctx context.Context, phase models.Phase, progress string) error {
	meta, err := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.Phase = phase
		if progress != "" {
			m.Progress = progress
		}
	})
	if err == nil {
		o.publishMeta(meta)
	}
	return err
}

// recordFailure persists the failure for display. A fatal failure ends the
// session: credentials and sync meta are cleared.
func (o *Orchestrator) recordFailure(ctx context.Context, a Action, err error) {
	ctx = context.WithoutCancel(ctx)
	switch Classify(err) {
	case OutcomeFatal:
		o.endSession(ctx, err)
	case OutcomeRetry:
		_, uerr := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
			m.LastError = describe(err)
			m.Progress = fmt.Sprintf("%s failed, will retry", strings.ToLower(string(a)))
		})
		if uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Msg("Failed to record sync failure")
		}
	}
}

// EndSession ends the session after a fatal authorization failure seen
// outside a sync action, such as a remote delete. It waits for a running
// action, then clears credentials and sync meta like a fatal sync failure.
// Callers cancel scheduled work themselves.
func (o *Orchestrator) EndSession(ctx context.Context, cause error) error {
	return o.guard.Run(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if !o.session.LoggedIn(ctx) {
			return nil
		}
		o.endSession(ctx, cause)
		return nil
	})
}

func (o *Orchestrator) endSession(ctx context.Context, cause error) {
	if lerr := o.session.Logout(ctx); lerr != nil {
		logging.Ctx(ctx).Error().Err(lerr).Msg("Failed to clear credentials")
	}
	if rerr := o.store.ResetMeta(ctx); rerr != nil {
		logging.Ctx(ctx).Error().Err(rerr).Msg("Failed to reset sync meta")
	}
	meta, uerr := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.Phase = models.PhaseError
		m.Progress = "Sign-in required"
		m.LastError = describe(cause)
	})
	if uerr == nil {
		o.publishMeta(meta)
	}
	logging.Ctx(ctx).Error().Err(cause).Msg("Sync session ended, sign-in required")
	if o.onReauth != nil {
		o.onReauth(ctx, cause)
	}
}

func (o *Orchestrator) publishMeta(m models.SyncMeta) {
	metrics.SetPhase(string(m.Phase), allPhases)
	metrics.SetBackfill(m.BackfillCursor, m.EmptyWindowStreak)
}

func (o *Orchestrator) publishQueueDepth(ctx context.Context, user string) {
	counts, err := o.store.CountByStatus(context.WithoutCancel(ctx), user)
	if err != nil {
		return
	}
	byName := make(map[string]int, len(models.AllStatuses()))
	for _, s := range models.AllStatuses() {
		byName[s.String()] = counts[s]
	}
	metrics.SetQueueDepth(byName)
}

// PauseBackfill stops further backfill steps. A step already running
// finishes and its cursor is kept.
func (o *Orchestrator) PauseBackfill(ctx context.Context) (models.SyncMeta, error) {
	meta, err := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.BackfillEnabled = false
		if m.Phase == models.PhaseBackfilling {
			m.Phase = models.PhasePaused
			m.Progress = "Backfill paused"
		}
	})
	if err == nil {
		o.publishMeta(meta)
		logging.Info().Msg("Backfill paused")
	}
	return meta, err
}

// ResumeBackfill re-enables backfill and clears the empty-window streak.
// The caller schedules the next BACKFILL_STEP.
func (o *Orchestrator) ResumeBackfill(ctx context.Context) (models.SyncMeta, error) {
	meta, err := o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		m.BackfillEnabled = true
		m.EmptyWindowStreak = 0
		if m.Phase == models.PhasePaused {
			m.Phase = models.PhaseBackfilling
			m.Progress = "Backfill resumed"
		}
	})
	if err == nil {
		o.publishMeta(meta)
		logging.Info().Msg("Backfill resumed")
	}
	return meta, err
}

// SetBackfillLowerBound records the earliest time worth backfilling, such
// as the account creation time. nil forgets a runtime bound.
func (o *Orchestrator) SetBackfillLowerBound(ctx context.Context, bound *time.Time) (models.SyncMeta, error) {
	return o.store.UpdateMeta(ctx, func(m *models.SyncMeta) {
		if bound == nil {
			m.BackfillLowerBound = nil
			return
		}
		b := bound.UTC()
		m.BackfillLowerBound = &b
	})
}

// Status is a snapshot for display.
type Status struct {
	LoggedIn bool            `json:"logged_in"`
	User     string          `json:"user"`
	Meta     models.SyncMeta `json:"meta"`
	Points   map[string]int  `json:"points"`
	Events   map[string]int  `json:"events"`
}

// Status reads the persisted phase and queue counts.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	user := o.session.Subject(ctx)
	st := Status{LoggedIn: o.session.LoggedIn(ctx), User: user}

	meta, err := o.store.LoadMeta(ctx)
	if err != nil {
		return st, err
	}
	st.Meta = meta

	points, err := o.store.CountByStatus(ctx, user)
	if err != nil {
		return st, err
	}
	events, err := o.store.CountEventsByStatus(ctx, user)
	if err != nil {
		return st, err
	}
	st.Points = statusNames(points)
	st.Events = statusNames(events)
	return st, nil
}

func statusNames(counts map[models.SyncStatus]int) map[string]int {
	out := make(map[string]int, len(counts))
	for s, n := range counts {
		out[s.String()] = n
	}
	return out
}

// ClearLocalData deletes the current user's queued rows and resets sync
// meta. It waits for any running action to finish first.
func (o *Orchestrator) ClearLocalData(ctx context.Context) error {
	return o.guard.Run(ctx, func(ctx context.Context) error {
		user := o.session.Subject(ctx)
		if err := o.store.ClearUser(ctx, user); err != nil {
			return fmt.Errorf("clear local data: %w", err)
		}
		if err := o.store.ResetMeta(ctx); err != nil {
			return fmt.Errorf("reset sync meta: %w", err)
		}
		o.publishQueueDepth(ctx, user)
		logging.Warn().Str("user", user).Msg("Local data cleared")
		return nil
	})
}
