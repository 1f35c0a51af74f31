// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ttl prunes idle sessions in the background.
//
// A shopper who walks away leaves a session record behind. The scheduler
// periodically removes every session idle past the configured horizon, so
// the session store holds only live conversations.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionCleaner deletes sessions idle since the cutoff and reports how many
// were removed. *sessionstore.Store satisfies this.
type SessionCleaner interface {
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// SchedulerConfig holds configuration for the cleanup scheduler.
//
// # Fields
//
//   - Interval: How often to run cleanup cycles. Default: 1 hour.
//   - IdleAfter: How long a session may sit untouched. Default: 24 hours.
type SchedulerConfig struct {
	Interval  time.Duration
	IdleAfter time.Duration
}

// DefaultSchedulerConfig returns sensible default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:  1 * time.Hour,
		IdleAfter: 24 * time.Hour,
	}
}

// CleanupResult summarizes one cleanup cycle.
type CleanupResult struct {
	SessionsRemoved int
	Elapsed         time.Duration
}

// Scheduler runs periodic idle-session cleanup.
//
// # Description
//
// Uses the ticker + done channel pattern for graceful shutdown. Only one
// scheduler should run per concierge instance.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	cleaner SessionCleaner
	config  SchedulerConfig
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a cleanup scheduler. It does not start until Start().
func NewScheduler(cleaner SessionCleaner, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		cleaner: cleaner,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start begins the background cleanup loop. Returns an error when the
// scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset done channel for potential restart
	s.mu.Unlock()

	slog.Info("Session cleanup scheduler starting",
		"interval", s.config.Interval.String(),
		"idle_after", s.config.IdleAfter.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the scheduler to stop. Safe to call multiple times. Does not
// interrupt an in-progress cleanup cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	slog.Info("Session cleanup scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers an immediate cleanup cycle, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	started := time.Now()
	cutoff := started.UTC().Add(-s.config.IdleAfter)

	removed, err := s.cleaner.DeleteIdle(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("session cleanup failed: %w", err)
	}

	result := CleanupResult{
		SessionsRemoved: removed,
		Elapsed:         time.Since(started),
	}
	if removed > 0 {
		slog.Info("Pruned idle sessions", "removed", removed, "elapsed", result.Elapsed.String())
	}
	return result, nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session cleanup scheduler stopped by context")
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil {
				slog.Error("Scheduled session cleanup failed", "error", err)
			}
		}
	}
}
