// Package scheduler runs the update check on a fixed interval until the
// context is cancelled.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/seaward-systems/fleetgate/common/logging"
)

// Task is one scheduled unit of work. Errors are logged, not fatal; the
// next tick runs regardless.
type Task func(ctx context.Context) error

type Scheduler struct {
	interval time.Duration
	task     Task
}

func New(interval time.Duration, task Task) *Scheduler {
	return &Scheduler{interval: interval, task: task}
}

// Run blocks until ctx is cancelled. The first execution happens after one
// full interval, not immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				slog.Error("scheduled task failed", logging.Error(err))
			}
		}
	}
}
