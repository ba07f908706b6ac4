// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tracksync/internal/capture"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/sampling"
	"github.com/tomtom215/tracksync/internal/store"
	"github.com/tomtom215/tracksync/internal/sync"
	"github.com/tomtom215/tracksync/internal/validation"
)

// Orchestrator is the sync state the control surface reads and changes.
type Orchestrator interface {
	Status(ctx context.Context) (sync.Status, error)
	PauseBackfill(ctx context.Context) (models.SyncMeta, error)
	ResumeBackfill(ctx context.Context) (models.SyncMeta, error)
	ClearLocalData(ctx context.Context) error
	EndSession(ctx context.Context, cause error) error
}

// Scheduler runs actions in the background.
type Scheduler interface {
	Trigger(a sync.Action) error
	CancelAll()
}

// Session signs the user in and out.
type Session interface {
	Login(ctx context.Context, req models.LoginRequest) error
	Logout(ctx context.Context) error
	Subject(ctx context.Context) string
}

// Recorder consumes location samples.
type Recorder interface {
	OnSample(s capture.Sample) capture.Decision
	SetCapturing(on bool) sampling.Profile
	Capturing() bool
}

// Events records life events.
type Events interface {
	Mark(ctx context.Context, user string, req capture.EventRequest) (*models.Event, error)
	StartRange(ctx context.Context, user string, req capture.EventRequest) (*models.Event, error)
	EndActiveRange(ctx context.Context, user string, at *time.Time) (*models.Event, error)
	Delete(ctx context.Context, user, id string) error
}

// MetaResetter clears persisted sync meta on logout.
type MetaResetter interface {
	ResetMeta(ctx context.Context) error
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Orchestrator Orchestrator
	Scheduler    Scheduler
	Session      Session
	Recorder     Recorder
	Events       Events
	Meta         MetaResetter

	// BreakerState reports the backend circuit breaker for /healthz.
	BreakerState func() string
}

// Handler serves the control routes.
type Handler struct {
	deps Deps
}

// NewHandler builds a handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Health reports liveness. It does not touch the network.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok", "capturing": h.deps.Recorder.Capturing()}
	if h.deps.BreakerState != nil {
		resp["backend_circuit"] = h.deps.BreakerState()
	}
	NewResponseWriter(w, r).Success(resp)
}

// Status returns the persisted phase and queue counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	st, err := h.deps.Orchestrator.Status(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(st)
}

// TriggerSync hands an action to the scheduler.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	action, err := sync.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	if !h.trigger(rw, action) {
		return
	}
	rw.Accepted(map[string]string{"action": string(action)})
}

// Backfill pauses or resumes history backfill.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var (
		meta models.SyncMeta
		err  error
	)
	switch chi.URLParam(r, "op") {
	case "pause":
		meta, err = h.deps.Orchestrator.PauseBackfill(r.Context())
	case "resume":
		meta, err = h.deps.Orchestrator.ResumeBackfill(r.Context())
		if err == nil && !h.trigger(rw, sync.ActionBackfillStep) {
			return
		}
	default:
		rw.NotFound("unknown backfill operation")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(meta)
}

// Capture starts or stops capture. The response carries the location
// request profile the platform must register.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var profile sampling.Profile
	switch chi.URLParam(r, "op") {
	case "start":
		profile = h.deps.Recorder.SetCapturing(true)
	case "stop":
		profile = h.deps.Recorder.SetCapturing(false)
	default:
		rw.NotFound("unknown capture operation")
		return
	}
	rw.Success(map[string]interface{}{"capturing": h.deps.Recorder.Capturing(), "profile": profile})
}

// Sample feeds one location sample to the recorder.
func (h *Handler) Sample(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var s capture.Sample
	if !decodeBody(rw, r, &s) {
		return
	}
	rw.Success(h.deps.Recorder.OnSample(s))
}

// EventBody is the body of POST /v1/events.
type EventBody struct {
	Type models.EventType `json:"event_type" validate:"required,oneof=POINT RANGE"`
	capture.EventRequest
}

// CreateEvent records a mark or opens a range.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var body EventBody
	if !decodeBody(rw, r, &body) {
		return
	}
	user := h.deps.Session.Subject(r.Context())

	var (
		ev  *models.Event
		err error
	)
	if body.Type == models.EventRange {
		ev, err = h.deps.Events.StartRange(r.Context(), user, body.EventRequest)
	} else {
		ev, err = h.deps.Events.Mark(r.Context(), user, body.EventRequest)
	}
	if h.eventError(rw, r, err) {
		return
	}
	rw.Created(ev)
}

// EndRangeBody is the optional body of POST /v1/events/active/end.
type EndRangeBody struct {
	At *time.Time `json:"at,omitempty"`
}

// EndActiveRange closes the open range.
func (h *Handler) EndActiveRange(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var body EndRangeBody
	if r.ContentLength != 0 && !decodeBody(rw, r, &body) {
		return
	}
	ev, err := h.deps.Events.EndActiveRange(r.Context(), h.deps.Session.Subject(r.Context()), body.At)
	if h.eventError(rw, r, err) {
		return
	}
	rw.Success(ev)
}

// DeleteEvent removes one event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	err := h.deps.Events.Delete(r.Context(), h.deps.Session.Subject(r.Context()), id)
	if h.eventError(rw, r, err) {
		return
	}
	rw.Success(map[string]string{"deleted": id})
}

// Login signs in and schedules a sync.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.LoginRequest
	if !decodeBody(rw, r, &req) {
		return
	}
	if err := h.deps.Session.Login(r.Context(), req); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Login failed")
		rw.Error(http.StatusUnauthorized, ErrCodeUnauthorized, "login failed")
		return
	}
	if err := h.deps.Scheduler.Trigger(sync.ActionSync); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Post-login sync not scheduled")
	}
	rw.Success(map[string]string{"user": h.deps.Session.Subject(r.Context())})
}

// Logout drops tokens, pending scheduled work and sync meta. Queued rows
// stay until the next sign-in.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	h.deps.Scheduler.CancelAll()
	if err := h.deps.Session.Logout(r.Context()); err != nil {
		rw.InternalError(err)
		return
	}
	if err := h.deps.Meta.ResetMeta(r.Context()); err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(map[string]bool{"logged_in": false})
}

// ClearLocal deletes the user's local rows and sync meta.
func (h *Handler) ClearLocal(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	h.deps.Scheduler.CancelAll()
	if err := h.deps.Orchestrator.ClearLocalData(r.Context()); err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(map[string]bool{"cleared": true})
}

func (h *Handler) trigger(rw *ResponseWriter, a sync.Action) bool {
	if err := h.deps.Scheduler.Trigger(a); err != nil {
		if errors.Is(err, sync.ErrNotRunning) {
			rw.ServiceUnavailable("sync scheduler is not running")
			return false
		}
		rw.InternalError(err)
		return false
	}
	return true
}

// eventError maps event errors to responses. It returns true when it wrote
// one. A fatal authorization error ends the sync session.
func (h *Handler) eventError(rw *ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	var (
		active *store.ActiveRangeError
		verr   *validation.RequestValidationError
	)
	switch {
	case errors.As(err, &active):
		rw.Conflict(err.Error(), map[string]string{"active_event_id": active.ID})
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("event not found")
	case errors.Is(err, store.ErrRangeClosed):
		rw.Conflict(err.Error(), nil)
	case errors.As(err, &verr):
		rw.ValidationError(verr)
	case sync.Classify(err) == sync.OutcomeFatal:
		h.deps.Scheduler.CancelAll()
		if eerr := h.deps.Orchestrator.EndSession(r.Context(), err); eerr != nil {
			logging.Ctx(r.Context()).Error().Err(eerr).Msg("Failed to end sync session")
		}
		rw.Error(http.StatusUnauthorized, ErrCodeUnauthorized, "sign-in required to delete synced events")
	default:
		rw.InternalError(err)
	}
	return true
}
