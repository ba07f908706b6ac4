// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Structured codes that mean the session can no longer be refreshed.
var fatalAuthCodes = map[string]bool{
	"token_invalid":         true,
	"token_revoked":         true,
	"refresh_token_reused":  true,
	"refresh_token_invalid": true,
	"refresh_token_expired": true,
}

// APIError is a non-2xx response. Code, Message and TraceID come from the
// error envelope and are empty when the server sent none.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.TraceID != "" {
		msg += " (trace " + e.TraceID + ")"
	}
	return msg
}

// Structured reports whether the envelope carried any field.
func (e *APIError) Structured() bool {
	return e.Code != "" || e.Message != "" || e.TraceID != ""
}

// Reason formats the error for a row's last error field.
func (e *APIError) Reason() string {
	switch {
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return fmt.Sprintf("http_%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http_%d", e.StatusCode)
}

// TransportError is a failure before a response was received.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return e.Endpoint + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an authorization failure that a
// credential refresh may fix.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsFatalAuth reports whether err carries a code meaning the token pair is
// unusable and the user must log in again.
func IsFatalAuth(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && fatalAuthCodes[apiErr.Code]
}

// IsTransient reports whether retrying later may succeed: transport
// failures, timeouts, 408, 429, 5xx and an open circuit.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		s := apiErr.StatusCode
		return s == http.StatusRequestTimeout || s == http.StatusTooManyRequests || s >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// IsRejection reports whether err is a permanent client-side refusal of
// the request payload: a 4xx other than 401, 408 and 429.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	s := apiErr.StatusCode
	return s >= 400 && s < 500 &&
		s != http.StatusUnauthorized && s != http.StatusRequestTimeout && s != http.StatusTooManyRequests
}
