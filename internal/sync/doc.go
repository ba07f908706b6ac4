// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package sync moves queued points and life events between the local store and
the backend.

Key Components:

  - Engine: uploads pending rows in bounded batches and pulls server pages
  - Reconcile: applies a batch receipt to the rows that were sent
  - Planner: computes the bootstrap range and backward backfill windows
  - Orchestrator: runs the SYNC, BOOTSTRAP_RECENT, BACKFILL_STEP, UPLOAD,
    PULL_24H and PULL_INCREMENTAL actions and persists the phase
  - Guard: at most one action touches the backend at a time
  - Scheduler: periodic ticks, manual triggers, follow-ups and retries

Outline of one upload:

 1. Select up to MaxBatch pending rows, oldest capture first
 2. Rows that fail local validation go straight to FAILED and are not sent
 3. The rest move to UPLOADING, then POST /tracks/batch
 4. The receipt is reconciled; on a whole-batch failure the rows this call
    claimed go back to QUEUED

Engines never decide retry policy. The orchestrator classifies every error
as retry or fatal and the scheduler acts on that.
*/
package sync
