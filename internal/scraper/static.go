// Package scraper contains the static-markup extraction strategy.
package scraper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/parser"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// PageFetcher is the slice of the network fetcher the strategy needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Static implements stock.ExtractionStrategy with a plain fetch-and-parse
// walk of the product page. Much faster than the browser path since nothing
// is rendered.
type Static struct {
	fetcher PageFetcher
	logger  *zap.Logger
}

// NewStatic builds a Static strategy.
func NewStatic(fetcher PageFetcher, logger *zap.Logger) *Static {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{fetcher: fetcher, logger: logger}
}

// CheckAvailability fetches the product page and parses its stock modal.
// A failed fetch or empty modal contributes an empty result for this product
// and the sweep continues; only context cancellation aborts the sweep.
func (s *Static) CheckAvailability(ctx context.Context, product stock.Product) ([]stock.Result, error) {
	html, err := s.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("check availability for %s: %w", product.SKU, ctx.Err())
		}
		s.logger.Warn("product fetch failed",
			zap.String("sku", product.SKU),
			zap.String("url", product.URL),
			zap.Error(err),
		)
		return nil, nil
	}

	rows := parser.ParseAvailability(html)
	results := make([]stock.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, stock.Result{
			SKU:      product.SKU,
			Province: row.Province,
			Location: row.Location,
			Quantity: row.Quantity,
		})
	}

	s.logger.Debug("parsed product page",
		zap.String("sku", product.SKU),
		zap.Int("rows", len(results)),
	)
	return results, nil
}
