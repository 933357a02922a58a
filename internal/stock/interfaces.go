package stock

import (
	"context"
	"time"
)

// ExtractionStrategy produces canonical results for one tracked product.
// Both the static-markup and the interactive-session implementations return
// the same shape with the same row filter.
type ExtractionStrategy interface {
	// CheckAvailability returns every parseable store row for the product.
	// Per-product failures degrade to an empty slice inside the strategy;
	// errors returned here abort the sweep.
	CheckAvailability(ctx context.Context, product Product) ([]Result, error)
}

// SessionStrategy is an ExtractionStrategy holding an exclusive resource
// (a browser session) for the duration of one sweep.
type SessionStrategy interface {
	ExtractionStrategy
	StartSession(ctx context.Context) error
	CloseSession()
}

// ProductRegistry persists the tracked product set.
type ProductRegistry interface {
	Create(ctx context.Context, url, sku string, msrp *float64) (Product, error)
	List(ctx context.Context) ([]Product, error)
	FindBySKU(ctx context.Context, sku string) (Product, error)
}

// AvailabilityStore upserts and queries availability records keyed on the
// (product, province, location) triple.
type AvailabilityStore interface {
	Upsert(ctx context.Context, productID, province, location string, quantity int) (AvailabilityRecord, error)
	FindBySKUAndLocation(ctx context.Context, sku, province, location string) ([]AvailabilityRecord, error)
}

// JobLog records scrape job lifecycle transitions.
type JobLog interface {
	CreateJob(ctx context.Context) (ScrapeJob, error)
	MarkCompleted(ctx context.Context, jobID string, recordsUpdated int) error
	MarkFailed(ctx context.Context, jobID string, errText string) error
	ListRecent(ctx context.Context, limit int) ([]ScrapeJob, error)
}

// Queue provides enqueue/dequeue semantics for sweep triggers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Pacer suspends the calling goroutine between outbound requests without
// blocking independent work.
type Pacer interface {
	Delay(ctx context.Context, d time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
