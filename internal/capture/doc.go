// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package capture turns raw location samples and user marks into queued rows.

The Recorder runs on the goroutine that delivers location callbacks. It steps
the sampling machine, decides whether the fix is worth keeping and hands kept
points to a Writer without blocking. The Writer is a supervised service that
drains points into the store.

Events records life events: instant marks and at most one open range per
user.
*/
package capture
