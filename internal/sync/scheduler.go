// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/logging"
)

// ErrNotRunning is returned when work is scheduled before Serve started or
// after it returned.
var ErrNotRunning = errors.New("scheduler not running")

// maxRetryDelay caps the exponential retry delay.
const maxRetryDelay = 30 * time.Minute

// Runner executes orchestrator actions.
type Runner interface {
	Run(ctx context.Context, a Action) Result
	TryRun(ctx context.Context, a Action) Result
}

// Scheduler fires SYNC on an interval and runs triggered, delayed and
// follow-up actions. Each invocation gets its own goroutine; the runner's
// guard is what serializes them.
type Scheduler struct {
	runner        Runner
	interval      time.Duration
	retryAttempts int
	retryDelay    time.Duration

	mu     stdsync.Mutex
	base   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	timers map[*time.Timer]struct{}
	wg     stdsync.WaitGroup
}

// NewScheduler builds a scheduler from cfg's interval and retry policy.
func NewScheduler(runner Runner, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{
		runner:        runner,
		interval:      cfg.Interval,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		timers:        make(map[*time.Timer]struct{}),
	}
}

// Serve runs until ctx is canceled. It implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return errors.New("scheduler already serving")
	}
	s.base = ctx
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logging.Info().Dur("interval", s.interval).Msg("Sync scheduler started")
	s.dispatch(ActionSync, 0, true)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			logging.Info().Msg("Sync scheduler stopped")
			return ctx.Err()
		case <-tick:
			s.dispatch(ActionSync, 0, true)
		}
	}
}

func (s *Scheduler) String() string {
	return "sync-scheduler"
}

// Trigger runs a now, waiting for the guard if another run holds it.
func (s *Scheduler) Trigger(a Action) error {
	return s.dispatchErr(a, 0, false)
}

// Schedule runs a once after delay.
func (s *Scheduler) Schedule(a Action, delay time.Duration) error {
	return s.after(a, 0, delay)
}

// CancelAll drops every pending timer and cancels runs still waiting for
// the guard. Serve keeps ticking.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	if s.cancel != nil {
		s.cancel()
		s.ctx, s.cancel = context.WithCancel(s.base)
	}
	logging.Warn().Msg("Scheduled sync work canceled")
}

// Pending reports how many delayed actions are waiting.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.stopTimersLocked()
	s.cancel()
	s.base, s.ctx, s.cancel = nil, nil, nil
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) stopTimersLocked() {
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}

func (s *Scheduler) dispatch(a Action, attempt int, try bool) {
	if err := s.dispatchErr(a, attempt, try); err != nil {
		logging.Debug().Str("action", string(a)).Err(err).Msg("Dispatch dropped")
	}
}

func (s *Scheduler) dispatchErr(a Action, attempt int, try bool) error {
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		var res Result
		if try {
			res = s.runner.TryRun(ctx, a)
		} else {
			res = s.runner.Run(ctx, a)
		}
		s.handle(ctx, res, attempt)
	}()
	return nil
}

func (s *Scheduler) after(a Action, attempt int, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrNotRunning
	}
	ctx := s.ctx

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[t]
		delete(s.timers, t)
		s.mu.Unlock()
		if live && ctx.Err() == nil {
			s.dispatch(a, attempt, false)
		}
	})
	s.timers[t] = struct{}{}
	return nil
}

func (s *Scheduler) handle(ctx context.Context, res Result, attempt int) {
	if ctx.Err() != nil {
		return
	}
	switch res.Outcome {
	case OutcomeSuccess:
		for _, next := range res.FollowUps {
			s.dispatch(next, 0, false)
		}
	case OutcomeRetry:
		if attempt+1 >= s.retryAttempts {
			logging.Warn().Str("action", string(res.Action)).Int("attempts", attempt+1).
				Msg("Giving up on sync action until the next tick")
			return
		}
		delay := s.backoff(attempt)
		logging.Info().Str("action", string(res.Action)).Int("attempt", attempt+1).Dur("delay", delay).
			Msg("Retry scheduled")
		if err := s.after(res.Action, attempt+1, delay); err != nil {
			logging.Debug().Err(err).Msg("Retry dropped")
		}
	case OutcomeFatal:
		s.CancelAll()
	}
}

// backoff doubles the base delay per attempt.
func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.retryDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
