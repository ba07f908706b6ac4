// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package supervisor runs the long-lived services of the client under a
suture v4 tree.

	tracksync
	├── data-layer     capture writer, store value-log GC
	├── sync-layer     sync scheduler
	└── control-layer  local control HTTP server

Each layer restarts its own services with backoff, so a crashing control
server does not stop captured fixes from reaching the store. Supervisor
events are logged through sutureslog into the zerolog logger.
*/
package supervisor
