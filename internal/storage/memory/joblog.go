package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// JobLog implements stock.JobLog in memory. The terminal-once rule from the
// Postgres store holds here too: a completed or failed job cannot be closed
// again.
type JobLog struct {
	mu    sync.RWMutex
	jobs  map[string]stock.ScrapeJob
	clock stock.Clock
	idGen stock.IDGenerator
}

// NewJobLog constructs a JobLog.
func NewJobLog(clock stock.Clock, idGen stock.IDGenerator) *JobLog {
	return &JobLog{
		jobs:  make(map[string]stock.ScrapeJob),
		clock: clock,
		idGen: idGen,
	}
}

// CreateJob records a new in_progress scrape job.
func (l *JobLog) CreateJob(_ context.Context) (stock.ScrapeJob, error) {
	id, err := l.idGen.NewID()
	if err != nil {
		return stock.ScrapeJob{}, err
	}
	job := stock.ScrapeJob{
		ID:        id,
		Status:    stock.JobStatusInProgress,
		StartedAt: l.clock.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs[id] = job
	return job, nil
}

// MarkCompleted closes the job as completed.
func (l *JobLog) MarkCompleted(_ context.Context, jobID string, recordsUpdated int) error {
	return l.close(jobID, func(job *stock.ScrapeJob) {
		job.Status = stock.JobStatusCompleted
		job.RecordsUpdated = recordsUpdated
	})
}

// MarkFailed closes the job as failed.
func (l *JobLog) MarkFailed(_ context.Context, jobID string, errText string) error {
	return l.close(jobID, func(job *stock.ScrapeJob) {
		job.Status = stock.JobStatusFailed
		job.ErrorMessage = errText
	})
}

func (l *JobLog) close(jobID string, mutate func(*stock.ScrapeJob)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != stock.JobStatusInProgress {
		return fmt.Errorf("job %s already terminal", jobID)
	}
	mutate(&job)
	now := l.clock.Now()
	job.CompletedAt = &now
	l.jobs[jobID] = job
	return nil
}

// ListRecent returns the most recent jobs, newest first.
func (l *JobLog) ListRecent(_ context.Context, limit int) ([]stock.ScrapeJob, error) {
	if limit <= 0 {
		limit = 10
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]stock.ScrapeJob, 0, len(l.jobs))
	for _, job := range l.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
