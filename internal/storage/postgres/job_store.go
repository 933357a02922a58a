package postgres

import (
	"context"
	"fmt"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// JobStore implements stock.JobLog on Postgres. Jobs are append-mostly:
// created in_progress and mutated exactly once to a terminal state.
type JobStore struct {
	pool  Pool
	clock stock.Clock
	idGen stock.IDGenerator
}

// NewJobStore constructs a JobStore on an existing pool.
func NewJobStore(pool Pool, clock stock.Clock, idGen stock.IDGenerator) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, clock: clock, idGen: idGen}, nil
}

// CreateJob inserts a new in_progress scrape job.
func (s *JobStore) CreateJob(ctx context.Context) (stock.ScrapeJob, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return stock.ScrapeJob{}, fmt.Errorf("create scrape job: %w", err)
	}
	now := s.clock.Now()

	query := `
INSERT INTO scrape_jobs (id, status, started_at, records_updated)
VALUES ($1, $2, $3, 0)`

	if _, err := s.pool.Exec(ctx, query, id, stock.JobStatusInProgress, now); err != nil {
		return stock.ScrapeJob{}, fmt.Errorf("insert scrape job: %w", err)
	}

	return stock.ScrapeJob{
		ID:        id,
		Status:    stock.JobStatusInProgress,
		StartedAt: now,
	}, nil
}

// MarkCompleted closes the job as completed with the records-updated count.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, recordsUpdated int) error {
	query := `
UPDATE scrape_jobs
SET status = $1, completed_at = $2, records_updated = $3
WHERE id = $4 AND status = $5`

	tag, err := s.pool.Exec(ctx, query,
		stock.JobStatusCompleted, s.clock.Now(), recordsUpdated, jobID, stock.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job completed: job %s not found or already terminal", jobID)
	}
	return nil
}

// MarkFailed closes the job as failed with the error text. Failed jobs stay
// closed; re-running is the queue's decision, recorded as a new job.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errText string) error {
	query := `
UPDATE scrape_jobs
SET status = $1, completed_at = $2, error_message = $3
WHERE id = $4 AND status = $5`

	tag, err := s.pool.Exec(ctx, query,
		stock.JobStatusFailed, s.clock.Now(), errText, jobID, stock.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job failed: job %s not found or already terminal", jobID)
	}
	return nil
}

// ListRecent returns the most recent scrape jobs, newest first.
func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]stock.ScrapeJob, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
SELECT id, status, started_at, completed_at, records_updated, error_message
FROM scrape_jobs
ORDER BY started_at DESC
LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []stock.ScrapeJob
	for rows.Next() {
		var (
			job     stock.ScrapeJob
			errText *string
		)
		if err := rows.Scan(&job.ID, &job.Status, &job.StartedAt, &job.CompletedAt, &job.RecordsUpdated, &errText); err != nil {
			return nil, fmt.Errorf("scan scrape job: %w", err)
		}
		if errText != nil {
			job.ErrorMessage = *errText
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scrape jobs: %w", err)
	}
	return jobs, nil
}
