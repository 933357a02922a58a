package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Sweeper runs one full availability sweep.
type Sweeper interface {
	Run(ctx context.Context) (stock.SweepOutcome, error)
}

// Config controls retry and timeout behavior for sweep execution.
type Config struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	SweepTimeout time.Duration
}

// Worker consumes sweep triggers from the queue and executes them. A failed
// attempt is retried with exponential backoff until MaxAttempts, then the
// queue job is failed for good.
type Worker struct {
	queue    stock.Queue
	registry *Registry
	sweeper  Sweeper
	cfg      Config
	logger   *zap.Logger

	retries sync.WaitGroup
}

// NewWorker constructs a Worker.
func NewWorker(queue stock.Queue, registry *Registry, sweeper Sweeper, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	return &Worker{
		queue:    queue,
		registry: registry,
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes. Pending
// retry timers are waited out on shutdown so no goroutine outlives Run.
func (w *Worker) Run(ctx context.Context) {
	defer w.retries.Wait()
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item stock.QueueItem) {
	log := w.logger.With(
		zap.String("queue_job_id", item.JobID),
		zap.Int("attempt", item.Attempt),
	)
	w.registry.MarkRunning(item.JobID, item.Attempt)

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.SweepTimeout)
	outcome, err := w.sweeper.Run(runCtx)
	cancel()

	if err == nil {
		w.registry.MarkCompleted(item.JobID)
		log.Info("sweep trigger completed",
			zap.String("scrape_job_id", outcome.JobID),
			zap.Int("records_updated", outcome.RecordsUpdated),
		)
		return
	}

	if item.Attempt >= w.cfg.MaxAttempts {
		w.registry.MarkFailed(item.JobID, err.Error())
		log.Error("sweep trigger exhausted retries", zap.Error(err))
		return
	}

	backoff := w.backoff(item.Attempt)
	w.registry.MarkQueued(item.JobID, item.Attempt+1)
	log.Warn("sweep attempt failed, scheduling retry",
		zap.Duration("backoff", backoff),
		zap.Error(err),
	)
	w.scheduleRetry(ctx, item, backoff)
}

// backoff doubles per attempt: base, 2*base, 4*base...
func (w *Worker) backoff(attempt int) time.Duration {
	return w.cfg.BackoffBase << (attempt - 1)
}

func (w *Worker) scheduleRetry(ctx context.Context, item stock.QueueItem, backoff time.Duration) {
	retry := item
	retry.Attempt++

	w.retries.Add(1)
	go func() {
		defer w.retries.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := w.queue.Enqueue(ctx, retry); err != nil {
			w.logger.Error("retry enqueue failed",
				zap.String("queue_job_id", retry.JobID),
				zap.Error(err),
			)
		}
	}()
}
