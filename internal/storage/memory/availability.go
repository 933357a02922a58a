package memory

import (
	"context"
	"sync"

	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

type tripleKey struct {
	productID string
	province  string
	location  string
}

// AvailabilityStore implements stock.AvailabilityStore on a map keyed by the
// (product, province, location) triple. The registry acts as the foreign key
// check: upserting against an unknown product returns
// stock.ErrUnknownProduct.
type AvailabilityStore struct {
	mu       sync.RWMutex
	records  map[tripleKey]stock.AvailabilityRecord
	registry *ProductRegistry
	clock    stock.Clock
	idGen    stock.IDGenerator
}

// NewAvailabilityStore constructs an AvailabilityStore backed by the given
// registry.
func NewAvailabilityStore(registry *ProductRegistry, clock stock.Clock, idGen stock.IDGenerator) *AvailabilityStore {
	return &AvailabilityStore{
		records:  make(map[tripleKey]stock.AvailabilityRecord),
		registry: registry,
		clock:    clock,
		idGen:    idGen,
	}
}

// Upsert writes one observation, overwriting quantity and last_observed_at
// on an existing triple.
func (s *AvailabilityStore) Upsert(
	_ context.Context,
	productID, province, location string,
	quantity int,
) (stock.AvailabilityRecord, error) {
	product, ok := s.registry.findByID(productID)
	if !ok {
		return stock.AvailabilityRecord{}, stock.ErrUnknownProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey{productID: productID, province: province, location: location}
	now := s.clock.Now()

	if existing, found := s.records[key]; found {
		existing.Quantity = quantity
		existing.LastObservedAt = now
		s.records[key] = existing
		metrics.ObserveUpsert("updated")
		return existing, nil
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return stock.AvailabilityRecord{}, err
	}
	record := stock.AvailabilityRecord{
		ID:              id,
		ProductID:       productID,
		SKU:             product.SKU,
		Province:        province,
		Location:        location,
		Quantity:        quantity,
		FirstObservedAt: now,
		LastObservedAt:  now,
	}
	s.records[key] = record
	metrics.ObserveUpsert("created")
	return record, nil
}

// FindBySKUAndLocation returns records for one SKU, optionally narrowed by
// province and location, ordered by (province, location, quantity DESC).
func (s *AvailabilityStore) FindBySKUAndLocation(
	_ context.Context,
	sku, province, location string,
) ([]stock.AvailabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stock.AvailabilityRecord
	for _, r := range s.records {
		if r.SKU != sku {
			continue
		}
		if province != "" && r.Province != province {
			continue
		}
		if location != "" && r.Location != location {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}
