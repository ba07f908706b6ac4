// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package main runs the tracksync agent.
//
// The agent records location fixes into a local BadgerDB queue, uploads
// them in batches, pulls recent history and backfills older history one
// window at a time. A small HTTP control API accepts samples, life events
// and session commands from the platform layer.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, then environment (Koanf v2)
//  2. Store: open the BadgerDB queue
//  3. Backend client and session (token pair optionally encrypted at rest)
//  4. Sync engine, orchestrator and scheduler
//  5. Capture recorder, writer and life events
//  6. Control API
//  7. Supervisor tree: data, sync and control layers
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. The control server drains in-flight
// requests, the capture writer flushes buffered fixes and the store closes
// last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/tracksync/internal/api"
	"github.com/tomtom215/tracksync/internal/auth"
	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/capture"
	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/store"
	"github.com/tomtom215/tracksync/internal/supervisor"
	"github.com/tomtom215/tracksync/internal/supervisor/services"
	"github.com/tomtom215/tracksync/internal/sync"
)

const gcInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	logging.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("store", cfg.Store.Path).
		Bool("control_api", cfg.Control.Enabled).
		Msg("Starting tracksync")

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	client := backend.New(cfg.Backend)

	enc, err := auth.NewTokenEncryptor(cfg.Auth.MasterKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid token master key")
	}
	if !enc.Enabled() {
		logging.Warn().Msg("Token encryption disabled (AUTH_MASTER_KEY unset); tokens are stored in clear")
	}
	session := auth.NewSession(st, client, enc, cfg.Auth.UserID)

	engine := sync.NewEngine(st, client, session, cfg.Sync)
	orchestrator := sync.NewOrchestrator(st, engine, session, sync.NewGuard(), cfg.Sync)
	orchestrator.SetReauthHook(func(ctx context.Context, err error) {
		logging.Ctx(ctx).Warn().Err(err).Msg("Session ended, sign in again to resume sync")
	})
	scheduler := sync.NewScheduler(orchestrator, cfg.Sync)

	writer := capture.NewWriter(st, cfg.Capture.Buffer)
	recorder := capture.NewRecorder(writer, func() string {
		return session.Subject(context.Background())
	}, cfg.Sampling, cfg.Capture)
	events := capture.NewEvents(st, func(ctx context.Context, id string) error {
		return session.Do(ctx, func(ctx context.Context, token string) error {
			return client.DeleteLifeEvent(ctx, token, id)
		})
	})

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(writer)
	tree.AddDataService(store.NewGCService(st, gcInterval))
	tree.AddSyncService(scheduler)

	if cfg.Control.Enabled {
		handler := api.NewHandler(api.Deps{
			Orchestrator: orchestrator,
			Scheduler:    scheduler,
			Session:      session,
			Recorder:     recorder,
			Events:       events,
			Meta:         st,
			BreakerState: client.BreakerState,
		})
		server := &http.Server{
			Addr:              cfg.Control.Listen,
			Handler:           api.NewRouter(handler, cfg.Control),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		tree.AddControlService(services.NewHTTPServerService("control-api", server, cfg.Control.ShutdownTimeout))
		logging.Info().Str("listen", cfg.Control.Listen).Msg("Control API enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Waiting for services to stop")
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Tracksync stopped")
}
