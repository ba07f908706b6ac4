// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tracksync/internal/auth"
	"github.com/tomtom215/tracksync/internal/backend"
)

// Outcome is how a run ended, as far as scheduling is concerned.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeFatal   Outcome = "fatal"
	OutcomeSkipped Outcome = "skipped"
)

// Classify maps an engine error to an outcome. Errors that are neither
// fatal nor cancellations are retried.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case auth.IsFatal(err), backend.IsFatalAuth(err):
		return OutcomeFatal
	case errors.Is(err, ErrBusy), errors.Is(err, context.Canceled):
		return OutcomeSkipped
	}
	return OutcomeRetry
}

// failureReason is the short token stored on rows reverted after a failed
// call.
func failureReason(err error) string {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Reason()
	case auth.IsFatal(err):
		return "session_expired"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case backend.IsTransient(err):
		return "network_error"
	}
	return "upload_failed"
}

// describe renders err for the persisted last-error field. It never
// includes response bodies.
func describe(err error) string {
	var apiErr *backend.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrNotLoggedIn):
		return "Not signed in"
	case errors.Is(err, auth.ErrSessionExpired), backend.IsFatalAuth(err):
		return "Session expired, sign in again"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "Server unavailable, will retry"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.As(err, &apiErr):
		if apiErr.Code != "" {
			return fmt.Sprintf("Server error %d (%s)", apiErr.StatusCode, apiErr.Code)
		}
		return fmt.Sprintf("Server error %d", apiErr.StatusCode)
	case backend.IsTransient(err):
		return "Network unavailable"
	}
	return "Sync failed"
}
