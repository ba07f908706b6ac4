// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"
)

// fakeRunner returns scripted outcomes per action and reports each
// invocation on ran.
type fakeRunner struct {
	mu      stdsync.Mutex
	scripts map[Action][]Result
	tries   int
	ran     chan Action
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{scripts: make(map[Action][]Result), ran: make(chan Action, 64)}
}

func (f *fakeRunner) script(a Action, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[a] = append(f.scripts[a], results...)
}

func (f *fakeRunner) next(a Action) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := Result{Action: a, Outcome: OutcomeSuccess}
	if q := f.scripts[a]; len(q) > 0 {
		res = q[0]
		res.Action = a
		f.scripts[a] = q[1:]
	}
	return res
}

func (f *fakeRunner) Run(_ context.Context, a Action) Result {
	res := f.next(a)
	f.ran <- a
	return res
}

func (f *fakeRunner) TryRun(_ context.Context, a Action) Result {
	f.mu.Lock()
	f.tries++
	f.mu.Unlock()
	res := f.next(a)
	f.ran <- a
	return res
}

func expectRun(t *testing.T, f *fakeRunner, want Action) {
	t.Helper()
	select {
	case got := <-f.ran:
		if got != want {
			t.Fatalf("ran %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func expectQuiet(t *testing.T, f *fakeRunner, d time.Duration) {
	t.Helper()
	select {
	case got := <-f.ran:
		t.Fatalf("unexpected run of %s", got)
	case <-time.After(d):
	}
}

// startScheduler serves s until the test ends and waits for the initial
// SYNC.
func startScheduler(t *testing.T, s *Scheduler, f *fakeRunner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	expectRun(t, f, ActionSync)
}

func TestScheduler_NotRunning(t *testing.T) {
	t.Parallel()

	s := NewScheduler(newFakeRunner(), testSyncConfig())
	if err := s.Trigger(ActionUpload); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Trigger = %v, want ErrNotRunning", err)
	}
	if err := s.Schedule(ActionUpload, time.Millisecond); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Schedule = %v, want ErrNotRunning", err)
	}
}

func TestScheduler_InitialSyncUsesTryRun(t *testing.T) {
	t.Parallel()

	f := newFakeRunner()
	startScheduler(t, NewScheduler(f, testSyncConfig()), f)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tries != 1 {
		t.Errorf("tries = %d, want 1", f.tries)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFakeRunner()
	s := NewScheduler(f, testSyncConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	expectRun(t, f, ActionSync)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if err := s.Trigger(ActionSync); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Trigger after stop = %v, want ErrNotRunning", err)
	}
}

func TestScheduler_FollowUpsChain(t *testing.T) {
	t.Parallel()

	f := newFakeRunner()
	f.script(ActionBootstrapRecent, Result{Outcome: OutcomeSuccess, FollowUps: []Action{ActionBackfillStep}})
	f.script(ActionBackfillStep,
		Result{Outcome: OutcomeSuccess, FollowUps: []Action{ActionBackfillStep}},
		Result{Outcome: OutcomeSuccess},
	)
	s := NewScheduler(f, testSyncConfig())
	startScheduler(t, s, f)

	if err := s.Trigger(ActionBootstrapRecent); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	expectRun(t, f, ActionBootstrapRecent)
	expectRun(t, f, ActionBackfillStep)
	expectRun(t, f, ActionBackfillStep)
	expectQuiet(t, f, 30*time.Millisecond)
}

func TestScheduler_RetriesWithBackoff(t *testing.T) {
	t.Parallel()

	f := newFakeRunner()
	f.script(ActionUpload, Result{Outcome: OutcomeRetry}, Result{Outcome: OutcomeRetry})
	s := NewScheduler(f, testSyncConfig())
	startScheduler(t, s, f)

	_ = s.Trigger(ActionUpload)
	expectRun(t, f, ActionUpload)
	expectRun(t, f, ActionUpload)
	expectRun(t, f, ActionUpload)
	expectQuiet(t, f, 60*time.Millisecond)
}

func TestScheduler_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	cfg := testSyncConfig()
	cfg.RetryAttempts = 2
	f := newFakeRunner()
	f.script(ActionPull24h, Result{Outcome: OutcomeRetry}, Result{Outcome: OutcomeRetry}, Result{Outcome: OutcomeRetry})
	s := NewScheduler(f, cfg)
	startScheduler(t, s, f)

	_ = s.Trigger(ActionPull24h)
	expectRun(t, f, ActionPull24h)
	expectRun(t, f, ActionPull24h)
	expectQuiet(t, f, 80*time.Millisecond)
}

func TestScheduler_FatalCancelsPending(t *testing.T) {
	t.Parallel()

	f := newFakeRunner()
	f.script(ActionUpload, Result{Outcome: OutcomeFatal})
	s := NewScheduler(f, testSyncConfig())
	startScheduler(t, s, f)

	if err := s.Schedule(ActionBackfillStep, time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}

	_ = s.Trigger(ActionUpload)
	expectRun(t, f, ActionUpload)

	deadline := time.Now().Add(2 * time.Second)
	for s.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after fatal, want 0", s.Pending())
	}

	// the scheduler keeps serving once the user signs in again
	if err := s.Trigger(ActionSync); err != nil {
		t.Fatalf("Trigger after fatal: %v", err)
	}
	expectRun(t, f, ActionSync)
}

func TestScheduler_Backoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{10 * time.Millisecond, 0, 10 * time.Millisecond},
		{10 * time.Millisecond, 1, 20 * time.Millisecond},
		{10 * time.Millisecond, 3, 80 * time.Millisecond},
		{0, 0, time.Second},
		{time.Minute, 10, maxRetryDelay},
	}
	for _, tt := range tests {
		s := &Scheduler{retryDelay: tt.base}
		if got := s.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(base=%v, attempt=%d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}
