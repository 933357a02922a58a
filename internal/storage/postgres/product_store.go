package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// ProductStore implements stock.ProductRegistry on Postgres.
type ProductStore struct {
	pool  Pool
	clock stock.Clock
	idGen stock.IDGenerator
}

// NewProductStore constructs a ProductStore on an existing pool.
func NewProductStore(pool Pool, clock stock.Clock, idGen stock.IDGenerator) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProductStore{pool: pool, clock: clock, idGen: idGen}, nil
}

// Create registers a new tracked SKU. Empty url or sku is rejected with
// stock.ErrInvalidInput; an already tracked SKU with stock.ErrDuplicateSKU,
// leaving the existing row untouched.
func (s *ProductStore) Create(ctx context.Context, url, sku string, msrp *float64) (stock.Product, error) {
	if url == "" || sku == "" {
		return stock.Product{}, stock.ErrInvalidInput
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return stock.Product{}, fmt.Errorf("create product: %w", err)
	}
	now := s.clock.Now()

	query := `
INSERT INTO products (id, sku, url, msrp, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, query, id, sku, url, msrp, now, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return stock.Product{}, stock.ErrDuplicateSKU
		}
		return stock.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return stock.Product{
		ID:        id,
		SKU:       sku,
		URL:       url,
		MSRP:      msrp,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// List returns every tracked product in creation order, which is also the
// order sweeps visit them in.
func (s *ProductStore) List(ctx context.Context) ([]stock.Product, error) {
	query := `
SELECT id, sku, url, msrp, created_at, updated_at
FROM products
ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []stock.Product
	for rows.Next() {
		var p stock.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.URL, &p.MSRP, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// FindBySKU fetches one tracked product or stock.ErrProductNotFound.
func (s *ProductStore) FindBySKU(ctx context.Context, sku string) (stock.Product, error) {
	query := `
SELECT id, sku, url, msrp, created_at, updated_at
FROM products
WHERE sku = $1`

	var p stock.Product
	err := s.pool.QueryRow(ctx, query, sku).Scan(&p.ID, &p.SKU, &p.URL, &p.MSRP, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.Product{}, stock.ErrProductNotFound
	}
	if err != nil {
		return stock.Product{}, fmt.Errorf("find product by sku: %w", err)
	}
	return p, nil
}
