// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tracksync/internal/auth"
	"github.com/tomtom215/tracksync/internal/backend"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"not logged in", auth.ErrNotLoggedIn, OutcomeFatal},
		{"expired wrapped", fmt.Errorf("upload: %w", auth.ErrSessionExpired), OutcomeFatal},
		{"revoked code", &backend.APIError{StatusCode: 403, Code: "token_revoked"}, OutcomeFatal},
		{"server error", &backend.APIError{StatusCode: 500}, OutcomeRetry},
		{"rate limited", &backend.APIError{StatusCode: http.StatusTooManyRequests}, OutcomeRetry},
		{"breaker open", gobreaker.ErrOpenState, OutcomeRetry},
		{"unknown", errors.New("weird"), OutcomeRetry},
		{"busy", ErrBusy, OutcomeSkipped},
		{"canceled", context.Canceled, OutcomeSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&backend.APIError{StatusCode: 503}, "http_503"},
		{&backend.APIError{StatusCode: 400, Code: "bad_batch", Message: "too big"}, "bad_batch: too big"},
		{context.DeadlineExceeded, "timeout"},
		{gobreaker.ErrOpenState, "circuit_open"},
		{&backend.TransportError{Endpoint: "tracks.batch", Err: errors.New("dial")}, "network_error"},
		{auth.ErrSessionExpired, "session_expired"},
	}
	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Errorf("failureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDescribeNeverLeaksBody(t *testing.T) {
	t.Parallel()

	err := &backend.APIError{StatusCode: 500, Message: "stack trace: at foo.bar"}
	if got := describe(err); got != "Server error 500" {
		t.Errorf("describe = %q", got)
	}
}
