// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package geo

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// hashPrecision is the number of decimal places kept before hashing,
// roughly one meter at the equator.
const hashPrecision = 5

// GeometryHash returns a hex SHA-256 digest of the coordinate rounded to
// five decimal places. Nearby fixes share a hash, which is enough for weak
// dedupe.
func GeometryHash(lat, lon float64) string {
	buf := make([]byte, 0, 32)
	buf = strconv.AppendFloat(buf, lat, 'f', hashPrecision, 64)
	buf = append(buf, ',')
	buf = strconv.AppendFloat(buf, lon, 'f', hashPrecision, 64)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
