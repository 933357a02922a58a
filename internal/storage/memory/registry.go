// Package memory provides in-memory store implementations for development
// and testing. They mirror the Postgres stores' semantics, including the
// sentinel errors, so the rest of the pipeline cannot tell them apart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// ProductRegistry implements stock.ProductRegistry on a map.
type ProductRegistry struct {
	mu       sync.RWMutex
	bySKU    map[string]stock.Product
	clock    stock.Clock
	idGen    stock.IDGenerator
	ordering []string
}

// NewProductRegistry constructs a ProductRegistry.
func NewProductRegistry(clock stock.Clock, idGen stock.IDGenerator) *ProductRegistry {
	return &ProductRegistry{
		bySKU: make(map[string]stock.Product),
		clock: clock,
		idGen: idGen,
	}
}

// Create registers a new product. SKU uniqueness maps to
// stock.ErrDuplicateSKU just like the unique constraint does in Postgres.
func (r *ProductRegistry) Create(_ context.Context, url, sku string, msrp *float64) (stock.Product, error) {
	url = strings.TrimSpace(url)
	sku = strings.TrimSpace(sku)
	if url == "" || sku == "" {
		return stock.Product{}, stock.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySKU[sku]; exists {
		return stock.Product{}, stock.ErrDuplicateSKU
	}

	id, err := r.idGen.NewID()
	if err != nil {
		return stock.Product{}, err
	}
	now := r.clock.Now()
	product := stock.Product{
		ID:        id,
		SKU:       sku,
		URL:       url,
		MSRP:      msrp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.bySKU[sku] = product
	r.ordering = append(r.ordering, sku)
	return product, nil
}

// List returns products in insertion order.
func (r *ProductRegistry) List(_ context.Context) ([]stock.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stock.Product, 0, len(r.ordering))
	for _, sku := range r.ordering {
		out = append(out, r.bySKU[sku])
	}
	return out, nil
}

// FindBySKU fetches one product by SKU.
func (r *ProductRegistry) FindBySKU(_ context.Context, sku string) (stock.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.bySKU[sku]
	if !ok {
		return stock.Product{}, stock.ErrProductNotFound
	}
	return product, nil
}

// findByID is used by the availability store to validate foreign keys.
func (r *ProductRegistry) findByID(id string) (stock.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.bySKU {
		if p.ID == id {
			return p, true
		}
	}
	return stock.Product{}, false
}

func sortRecords(records []stock.AvailabilityRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Province != b.Province {
			return a.Province < b.Province
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Quantity > b.Quantity
	})
}
