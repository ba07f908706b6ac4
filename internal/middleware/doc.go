// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package middleware holds the HTTP middleware of the local control server.

  - RequestID: reuses or generates X-Request-ID and tags the request context
    with a correlation id for logging.Ctx.
  - Metrics: records request counts and latency per chi route pattern, so
    path parameters never become label values.

Both have the chi middleware shape func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
*/
package middleware
