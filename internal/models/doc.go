// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package models defines the records shared by capture, the local queue and the
sync engine.

Records:

  - Point: one captured location fix, keyed by a client-generated UUID
    (client_point_id) that doubles as the server idempotency key.
  - Event: a user-declared instant (POINT) or interval (RANGE); an open
    RANGE has a nil EndAt.
  - SyncState: the per-row sync status, last error and last-synced time.
    Payload fields are immutable once captured; only SyncState mutates.
  - SyncMeta: process-durable orchestration state (phase, backfill cursor,
    empty-window streak, last upload/pull times, last error).

Wire types (BatchRequest, Receipt, TrackQueryResponse, TokenResponse,
ErrorEnvelope) mirror the backend JSON contract field for field.
*/
package models
