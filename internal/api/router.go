// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/middleware"
)

// NewRouter mounts the control routes. Health and metrics are not rate
// limited; everything under /v1 is, per client IP.
func NewRouter(h *Handler, cfg config.ControlConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg))

		r.Get("/status", h.Status)
		r.Post("/sync/{action}", h.TriggerSync)
		r.Post("/backfill/{op}", h.Backfill)
		r.Post("/capture/{op}", h.Capture)
		r.Post("/samples", h.Sample)

		r.Post("/events", h.CreateEvent)
		r.Post("/events/active/end", h.EndActiveRange)
		r.Delete("/events/{id}", h.DeleteEvent)

		r.Post("/session/login", h.Login)
		r.Post("/session/logout", h.Logout)
		r.Post("/local/clear", h.ClearLocal)
	})
	return r
}

func rateLimit(cfg config.ControlConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimitReqs,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
		}),
	)
}
