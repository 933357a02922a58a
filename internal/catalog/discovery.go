// Package catalog discovers trackable products from the retailer's paginated
// listing and registers them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/parser"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// ListingFetcher is the slice of the network fetcher discovery needs.
type ListingFetcher interface {
	FetchListingPage(ctx context.Context, page int) (string, error)
}

// Result summarizes one discovery walk.
type Result struct {
	PagesScanned  int `json:"pages_scanned"`
	ProductsSeen  int `json:"products_seen"`
	ProductsAdded int `json:"products_added"`
}

// Discovery walks listing pages and registers every product card it finds.
// Already-tracked SKUs are skipped silently, so repeated discovery runs are
// idempotent.
type Discovery struct {
	fetcher   ListingFetcher
	registry  stock.ProductRegistry
	pacer     stock.Pacer
	pageDelay time.Duration
	maxPages  int
	logger    *zap.Logger
}

// NewDiscovery wires a Discovery service.
func NewDiscovery(
	fetcher ListingFetcher,
	registry stock.ProductRegistry,
	pacer stock.Pacer,
	pageDelay time.Duration,
	maxPages int,
	logger *zap.Logger,
) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages <= 0 {
		maxPages = 5
	}
	return &Discovery{
		fetcher:   fetcher,
		registry:  registry,
		pacer:     pacer,
		pageDelay: pageDelay,
		maxPages:  maxPages,
		logger:    logger,
	}
}

// Run walks listing pages starting at 1 and stops at the first page with no
// product cards, or at the page cap.
func (d *Discovery) Run(ctx context.Context) (Result, error) {
	var result Result
	for page := 1; page <= d.maxPages; page++ {
		if page > 1 {
			d.pacer.Delay(ctx, d.pageDelay)
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		html, err := d.fetcher.FetchListingPage(ctx, page)
		if err != nil {
			return result, fmt.Errorf("fetch listing page %d: %w", page, err)
		}

		listings := parser.ParseListing(html)
		if len(listings) == 0 {
			break
		}
		result.PagesScanned++
		result.ProductsSeen += len(listings)

		for _, listing := range listings {
			added, err := d.register(ctx, listing)
			if err != nil {
				return result, err
			}
			if added {
				result.ProductsAdded++
			}
		}
	}

	d.logger.Info("discovery finished",
		zap.Int("pages", result.PagesScanned),
		zap.Int("seen", result.ProductsSeen),
		zap.Int("added", result.ProductsAdded),
	)
	return result, nil
}

func (d *Discovery) register(ctx context.Context, listing parser.Listing) (bool, error) {
	sku := strings.TrimSpace(listing.Name)
	url := strings.TrimSpace(listing.URL)
	if sku == "" || url == "" {
		return false, nil
	}

	_, err := d.registry.Create(ctx, url, sku, NormalizePrice(listing.Price))
	if errors.Is(err, stock.ErrDuplicateSKU) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("register %s: %w", sku, err)
	}
	return true, nil
}

// NormalizePrice converts a rendered price like "$1,299.99" into a float.
// Unparseable prices come back nil rather than zero, keeping MSRP honest.
func NormalizePrice(text string) *float64 {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
