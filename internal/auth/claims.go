// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims reads subject and expiry from an access token without
// verifying it. The backend verifies; the client only needs the user scope.
func tokenClaims(accessToken string) (subject string, expiresAt *time.Time) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return "", nil
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.UTC()
		expiresAt = &t
	}
	return claims.Subject, expiresAt
}
