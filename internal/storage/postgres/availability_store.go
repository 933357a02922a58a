package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// AvailabilityStore implements stock.AvailabilityStore on Postgres. The
// unique (product_id, province, location) constraint is what makes repeated
// upserts dedup-safe without application-level locking.
type AvailabilityStore struct {
	pool  Pool
	clock stock.Clock
	idGen stock.IDGenerator
}

// NewAvailabilityStore constructs an AvailabilityStore on an existing pool.
func NewAvailabilityStore(pool Pool, clock stock.Clock, idGen stock.IDGenerator) (*AvailabilityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AvailabilityStore{pool: pool, clock: clock, idGen: idGen}, nil
}

// Upsert writes one observation. An existing triple gets its quantity and
// last_observed_at overwritten; a new triple is inserted with both
// timestamps set to now. Idempotent on the stored value; timestamps always
// advance. An unknown product id maps to stock.ErrUnknownProduct so the
// sweep can skip-with-warning.
func (s *AvailabilityStore) Upsert(
	ctx context.Context,
	productID, province, location string,
	quantity int,
) (stock.AvailabilityRecord, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return stock.AvailabilityRecord{}, fmt.Errorf("upsert availability: %w", err)
	}
	now := s.clock.Now()

	query := `
INSERT INTO availability (id, product_id, province, location, quantity, first_observed_at, last_observed_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (product_id, province, location) DO UPDATE
SET quantity = EXCLUDED.quantity, last_observed_at = EXCLUDED.last_observed_at
RETURNING id, first_observed_at, last_observed_at`

	record := stock.AvailabilityRecord{
		ProductID: productID,
		Province:  province,
		Location:  location,
		Quantity:  quantity,
	}
	err = s.pool.QueryRow(ctx, query, id, productID, province, location, quantity, now).
		Scan(&record.ID, &record.FirstObservedAt, &record.LastObservedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return stock.AvailabilityRecord{}, stock.ErrUnknownProduct
		}
		return stock.AvailabilityRecord{}, fmt.Errorf("upsert availability: %w", err)
	}

	if record.FirstObservedAt.Equal(record.LastObservedAt) {
		metrics.ObserveUpsert("created")
	} else {
		metrics.ObserveUpsert("updated")
	}
	return record, nil
}

// FindBySKUAndLocation returns availability rows for one SKU, optionally
// narrowed by province and location, ordered by
// (province, location, quantity DESC).
func (s *AvailabilityStore) FindBySKUAndLocation(
	ctx context.Context,
	sku, province, location string,
) ([]stock.AvailabilityRecord, error) {
	var sb strings.Builder
	sb.WriteString(`
SELECT a.id, a.product_id, p.sku, a.province, a.location, a.quantity, a.first_observed_at, a.last_observed_at
FROM availability a
JOIN products p ON p.id = a.product_id
WHERE p.sku = $1`)

	args := []any{sku}
	if province != "" {
		args = append(args, province)
		fmt.Fprintf(&sb, " AND a.province = $%d", len(args))
	}
	if location != "" {
		args = append(args, location)
		fmt.Fprintf(&sb, " AND a.location = $%d", len(args))
	}
	sb.WriteString(" ORDER BY a.province, a.location, a.quantity DESC")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	var records []stock.AvailabilityRecord
	for rows.Next() {
		var r stock.AvailabilityRecord
		err := rows.Scan(
			&r.ID, &r.ProductID, &r.SKU, &r.Province, &r.Location,
			&r.Quantity, &r.FirstObservedAt, &r.LastObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	return records, nil
}
