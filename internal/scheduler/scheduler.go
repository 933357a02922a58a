// Package scheduler submits recurring sweep triggers on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/queue"
)

// Scheduler enqueues a sweep every interval until its context ends. If a
// previous sweep is still running, the queue absorbs the new trigger and the
// sweep runner's single-flight guard keeps the walks from overlapping.
type Scheduler struct {
	trigger  *queue.Trigger
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(trigger *queue.Trigger, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{trigger: trigger, interval: interval, logger: logger}
}

// Run blocks, submitting sweeps on each tick until ctx finishes. The first
// sweep fires after one full interval, not at startup.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := s.trigger.Submit(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("scheduled sweep submit failed", zap.Error(err))
				continue
			}
			s.logger.Info("scheduled sweep submitted", zap.String("queue_job_id", job.ID))
		}
	}
}
