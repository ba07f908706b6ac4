// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package api is the local control surface of the client: a chi router a host
application or an operator uses to feed samples, declare events, sign in and
drive sync.

Routes:

	GET  /healthz                  liveness and circuit breaker state
	GET  /metrics                  Prometheus exposition
	GET  /v1/status                phase, progress and queue depth
	POST /v1/sync/{action}         run SYNC, UPLOAD, PULL_24H, ...
	POST /v1/backfill/{op}         pause or resume history backfill
	POST /v1/capture/{op}          start or stop capture
	POST /v1/samples               one location sample
	POST /v1/events                a POINT mark or a RANGE start
	POST /v1/events/active/end     close the open range
	DELETE /v1/events/{id}         delete an event
	POST /v1/session/login         exchange credentials for tokens
	POST /v1/session/logout        drop tokens and pending work
	POST /v1/local/clear           delete the user's local rows

Every response is wrapped in APIResponse. Request bodies are validated with
the shared validator and rejected with VALIDATION_FAILED.
*/
package api
