// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// BatchRequest is the body of POST /tracks/batch.
type BatchRequest struct {
	Items []TrackPoint `json:"items"`
}

// Rejection names one refused item in a receipt.
type Rejection struct {
	ClientPointID string `json:"client_point_id"`
	ReasonCode    string `json:"reason_code"`
	Message       string `json:"message,omitempty"`
}

// Reason formats the rejection as stored in a row's last error.
func (r Rejection) Reason() string {
	if r.Message == "" {
		return r.ReasonCode
	}
	return r.ReasonCode + ": " + r.Message
}

// Receipt is the response of POST /tracks/batch.
type Receipt struct {
	AcceptedIDs []string    `json:"accepted_ids"`
	Rejected    []Rejection `json:"rejected"`
}

// TrackQueryResponse is the response of GET /tracks/query.
type TrackQueryResponse struct {
	Items []TrackPoint `json:"items"`
}

// LifeEventListResponse is the response of GET /life-events.
type LifeEventListResponse struct {
	Items []LifeEvent `json:"items"`
}

// ErrorEnvelope is the body of any non-2xx response. All fields are optional.
type ErrorEnvelope struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Empty reports whether the server supplied no structured error.
func (e ErrorEnvelope) Empty() bool {
	return e.Code == "" && e.Message == "" && e.TraceID == ""
}
