// Package queue tracks sweep triggers: their queue-level state, progress and
// retry attempts. The persisted scrape job log records what a sweep did; this
// package records what happened to the request for one.
package queue

import (
	"sort"
	"sync"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Progress checkpoints reported for a queued sweep. Coarse on purpose: the
// sweep itself is opaque to the queue.
const (
	ProgressQueued    = 0
	ProgressRunning   = 10
	ProgressCompleted = 100
)

// Registry tracks queue jobs by ID.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]stock.QueueJob
	clock stock.Clock
	idGen stock.IDGenerator
}

// NewRegistry constructs a Registry.
func NewRegistry(clock stock.Clock, idGen stock.IDGenerator) *Registry {
	return &Registry{
		jobs:  make(map[string]stock.QueueJob),
		clock: clock,
		idGen: idGen,
	}
}

// Submit records a new queued job on its first attempt.
func (r *Registry) Submit(name string) (stock.QueueJob, error) {
	id, err := r.idGen.NewID()
	if err != nil {
		return stock.QueueJob{}, err
	}
	job := stock.QueueJob{
		ID:          id,
		Name:        name,
		State:       stock.QueueJobQueued,
		Progress:    ProgressQueued,
		Attempt:     1,
		SubmittedAt: r.clock.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = job
	return job, nil
}

// MarkRunning transitions the job to running on the given attempt.
func (r *Registry) MarkRunning(id string, attempt int) {
	r.update(id, func(job *stock.QueueJob) {
		job.State = stock.QueueJobRunning
		job.Progress = ProgressRunning
		job.Attempt = attempt
	})
}

// MarkQueued puts a job back in the queued state for a retry attempt.
func (r *Registry) MarkQueued(id string, attempt int) {
	r.update(id, func(job *stock.QueueJob) {
		job.State = stock.QueueJobQueued
		job.Progress = ProgressQueued
		job.Attempt = attempt
		job.ErrorText = ""
	})
}

// MarkCompleted finishes the job at full progress.
func (r *Registry) MarkCompleted(id string) {
	r.update(id, func(job *stock.QueueJob) {
		job.State = stock.QueueJobCompleted
		job.Progress = ProgressCompleted
		job.ErrorText = ""
	})
}

// MarkFailed finishes the job with the final error text.
func (r *Registry) MarkFailed(id string, errText string) {
	r.update(id, func(job *stock.QueueJob) {
		job.State = stock.QueueJobFailed
		job.ErrorText = errText
	})
}

func (r *Registry) update(id string, mutate func(*stock.QueueJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	mutate(&job)
	r.jobs[id] = job
}

// Get returns the job by ID.
func (r *Registry) Get(id string) (stock.QueueJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns all known jobs, newest first.
func (r *Registry) List() []stock.QueueJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stock.QueueJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}
