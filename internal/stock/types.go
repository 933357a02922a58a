// Package stock defines core types shared across subsystems.
package stock

import "time"

// Result is the canonical observation produced by every extraction strategy:
// one store's quantity for one SKU, tagged with the enclosing province.
type Result struct {
	SKU      string `json:"sku"`
	Province string `json:"province"`
	Location string `json:"location"`
	Quantity int    `json:"quantity"`
}

// Snapshot is the aggregated availability view keyed
// province -> location -> SKU.
type Snapshot map[string]map[string]map[string]Result

// Product is a tracked SKU. Created once via the registry; the pipeline
// never deletes it.
type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	URL       string    `json:"url"`
	MSRP      *float64  `json:"msrp,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityRecord is the persisted stock observation for one
// (product, province, location) triple. At most one record exists per
// triple; repeat observations overwrite quantity and LastObservedAt.
type AvailabilityRecord struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	SKU             string    `json:"sku,omitempty"`
	Province        string    `json:"province"`
	Location        string    `json:"location"`
	Quantity        int       `json:"quantity"`
	FirstObservedAt time.Time `json:"first_observed_at"`
	LastObservedAt  time.Time `json:"last_observed_at"`
}

// JobStatus represents the lifecycle state of a scrape job record.
type JobStatus string

// Job status values persisted in the scrape job log.
const (
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ScrapeJob summarizes one sweep. It is created in_progress and mutated
// exactly once to a terminal state; a failed job is a closed record and is
// never retried in place.
type ScrapeJob struct {
	ID             string     `json:"id"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RecordsUpdated int        `json:"records_updated"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// SweepOutcome is what a completed sweep hands back to its trigger.
type SweepOutcome struct {
	JobID          string   `json:"job_id"`
	RecordsUpdated int      `json:"records_updated"`
	Snapshot       Snapshot `json:"snapshot"`
}

// QueueItem wraps a sweep request ready to run.
type QueueItem struct {
	JobID     string
	Name      string
	Attempt   int
	Submitted int64
}

// QueueJobState is the externally visible state of a queued sweep.
type QueueJobState string

// Queue job states reported by the job registry.
const (
	QueueJobQueued    QueueJobState = "queued"
	QueueJobRunning   QueueJobState = "running"
	QueueJobCompleted QueueJobState = "completed"
	QueueJobFailed    QueueJobState = "failed"
)

// QueueJob is the queue-level view of a sweep trigger: id, state, progress
// percentage and attempt counter. Distinct from the persisted ScrapeJob,
// which records the sweep itself.
type QueueJob struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	State       QueueJobState `json:"state"`
	Progress    int           `json:"progress"`
	Attempt     int           `json:"attempt"`
	SubmittedAt time.Time     `json:"submitted_at"`
	ErrorText   string        `json:"error_text,omitempty"`
}
