// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package models

import "time"

// Credentials is the persisted token pair. Token fields hold ciphertext
// when encryption at rest is enabled.
type Credentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Subject      string     `json:"subject,omitempty"`
	Encrypted    bool       `json:"encrypted,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
