package stock

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across package boundaries.
var (
	// ErrDuplicateSKU is returned by the registry when a SKU is already tracked.
	ErrDuplicateSKU = errors.New("sku already tracked")

	// ErrInvalidInput is returned when a required registry field is empty.
	ErrInvalidInput = errors.New("url and sku are required")

	// ErrProductNotFound is returned by lookups for unknown SKUs.
	ErrProductNotFound = errors.New("product not found")

	// ErrUnknownProduct marks an upsert whose product id is not tracked.
	// The sweep treats it as skip-with-warning, not a failure.
	ErrUnknownProduct = errors.New("product not tracked")
)

// FetchError describes a failed page fetch: either a non-2xx status or a
// transport-level failure. Retry policy lives with the queue, not here.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// JobExecutionError wraps a sweep-level failure so the trigger can decide on
// retries while the scrape job record keeps the original message.
type JobExecutionError struct {
	JobID string
	Err   error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("sweep %s failed: %v", e.JobID, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }
