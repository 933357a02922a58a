// Package sweep runs full availability sweeps: one scrape job walking every
// tracked product sequentially, persisting observed stock and producing the
// aggregated snapshot.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Runner orchestrates sweeps. Concurrent Run calls collapse into one
// underlying sweep via singleflight; every caller receives the shared
// outcome.
type Runner struct {
	registry     stock.ProductRegistry
	availability stock.AvailabilityStore
	jobs         stock.JobLog
	strategy     stock.ExtractionStrategy
	pacer        stock.Pacer
	productDelay time.Duration
	logger       *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	snapshot stock.Snapshot
	taken    time.Time
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(
	registry stock.ProductRegistry,
	availability stock.AvailabilityStore,
	jobs stock.JobLog,
	strategy stock.ExtractionStrategy,
	pacer stock.Pacer,
	productDelay time.Duration,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry:     registry,
		availability: availability,
		jobs:         jobs,
		strategy:     strategy,
		pacer:        pacer,
		productDelay: productDelay,
		logger:       logger,
	}
}

// Run executes one sweep, or joins the sweep already in flight. The scrape
// job record always reaches a terminal state before Run returns.
func (r *Runner) Run(ctx context.Context) (stock.SweepOutcome, error) {
	v, err, _ := r.group.Do("sweep", func() (any, error) {
		return r.run(ctx)
	})
	if err != nil {
		return stock.SweepOutcome{}, err
	}
	return v.(stock.SweepOutcome), nil
}

func (r *Runner) run(ctx context.Context) (stock.SweepOutcome, error) {
	started := time.Now()

	job, err := r.jobs.CreateJob(ctx)
	if err != nil {
		return stock.SweepOutcome{}, fmt.Errorf("create scrape job: %w", err)
	}
	log := r.logger.With(zap.String("job_id", job.ID))
	log.Info("sweep started")

	outcome, err := r.walk(ctx, job.ID, log)
	if err != nil {
		r.fail(job.ID, err, log)
		metrics.ObserveSweep("failed", time.Since(started))
		return stock.SweepOutcome{}, &stock.JobExecutionError{JobID: job.ID, Err: err}
	}

	if err := r.jobs.MarkCompleted(ctx, job.ID, outcome.RecordsUpdated); err != nil {
		log.Error("mark job completed", zap.Error(err))
	}
	r.cacheSnapshot(outcome.Snapshot)
	metrics.ObserveSweep("completed", time.Since(started))
	log.Info("sweep completed",
		zap.Int("records_updated", outcome.RecordsUpdated),
		zap.Duration("elapsed", time.Since(started)),
	)
	return outcome, nil
}

func (r *Runner) walk(ctx context.Context, jobID string, log *zap.Logger) (stock.SweepOutcome, error) {
	if session, ok := r.strategy.(stock.SessionStrategy); ok {
		if err := session.StartSession(ctx); err != nil {
			return stock.SweepOutcome{}, fmt.Errorf("start session: %w", err)
		}
		defer session.CloseSession()
	}

	products, err := r.registry.List(ctx)
	if err != nil {
		return stock.SweepOutcome{}, fmt.Errorf("list products: %w", err)
	}

	var (
		all     [][]stock.Result
		updated int
	)
	for i, product := range products {
		if i > 0 {
			r.pacer.Delay(ctx, r.productDelay)
		}
		if ctx.Err() != nil {
			return stock.SweepOutcome{}, ctx.Err()
		}

		results, err := r.strategy.CheckAvailability(ctx, product)
		if err != nil {
			metrics.ObserveProductScrape("error")
			return stock.SweepOutcome{}, fmt.Errorf("check %s: %w", product.SKU, err)
		}
		if len(results) == 0 {
			metrics.ObserveProductScrape("empty")
		} else {
			metrics.ObserveProductScrape("ok")
		}
		all = append(all, results)

		n, err := r.persist(ctx, product, results, log)
		if err != nil {
			return stock.SweepOutcome{}, err
		}
		updated += n
	}

	return stock.SweepOutcome{
		JobID:          jobID,
		RecordsUpdated: updated,
		Snapshot:       stock.Aggregate(all),
	}, nil
}

// persist writes the in-stock rows for one product. Zero-quantity rows stay
// in the snapshot but are never written, so the store only ever holds
// locations that had stock at observation time.
func (r *Runner) persist(
	ctx context.Context,
	product stock.Product,
	results []stock.Result,
	log *zap.Logger,
) (int, error) {
	var updated int
	for _, res := range results {
		if res.Quantity <= 0 {
			continue
		}
		_, err := r.availability.Upsert(ctx, product.ID, res.Province, res.Location, res.Quantity)
		if errors.Is(err, stock.ErrUnknownProduct) {
			log.Warn("skipping untracked product",
				zap.String("sku", res.SKU),
				zap.String("location", res.Location),
			)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("upsert %s/%s/%s: %w", res.SKU, res.Province, res.Location, err)
		}
		updated++
	}
	return updated, nil
}

func (r *Runner) fail(jobID string, cause error, log *zap.Logger) {
	// Closing the job record must survive a canceled sweep context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		log.Error("mark job failed", zap.Error(err))
	}
	log.Error("sweep failed", zap.Error(cause))
}

func (r *Runner) cacheSnapshot(s stock.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = s
	r.taken = time.Now()
}

// Latest returns the snapshot from the most recent completed sweep and when
// it was taken. The boolean is false until a sweep has completed.
func (r *Runner) Latest() (stock.Snapshot, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return nil, time.Time{}, false
	}
	return r.snapshot, r.taken, true
}
