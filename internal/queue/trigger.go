package queue

import (
	"context"
	"fmt"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// SweepJobName labels every sweep trigger, whether scheduled or manual.
const SweepJobName = "stock-sweep"

// Trigger submits sweep requests: it records the queue job and enqueues the
// matching item in one step. Shared by the scheduler and the HTTP API.
type Trigger struct {
	registry *Registry
	queue    stock.Queue
	clock    stock.Clock
}

// NewTrigger constructs a Trigger.
func NewTrigger(registry *Registry, queue stock.Queue, clock stock.Clock) *Trigger {
	return &Trigger{registry: registry, queue: queue, clock: clock}
}

// Submit registers and enqueues one sweep request.
func (t *Trigger) Submit(ctx context.Context) (stock.QueueJob, error) {
	job, err := t.registry.Submit(SweepJobName)
	if err != nil {
		return stock.QueueJob{}, fmt.Errorf("submit sweep: %w", err)
	}

	item := stock.QueueItem{
		JobID:     job.ID,
		Name:      job.Name,
		Attempt:   1,
		Submitted: t.clock.Now().Unix(),
	}
	if err := t.queue.Enqueue(ctx, item); err != nil {
		t.registry.MarkFailed(job.ID, err.Error())
		return stock.QueueJob{}, fmt.Errorf("enqueue sweep: %w", err)
	}
	return job, nil
}

// Job looks up one queue job by ID.
func (t *Trigger) Job(id string) (stock.QueueJob, bool) {
	return t.registry.Get(id)
}

// Jobs lists known queue jobs, newest first.
func (t *Trigger) Jobs() []stock.QueueJob {
	return t.registry.List()
}
