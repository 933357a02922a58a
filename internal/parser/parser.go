// Package parser extracts stock records from fetched page markup.
// Everything here is pure: malformed markup degrades to partial or empty
// results, never an error.
package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the product page's store-availability modal. These mirror
// the target site's markup and break whenever it changes; an absent element
// simply yields no rows.
const (
	modalSelector     = ".modal-body"
	storeRowSelector  = ".row.mx-0.align-items-center.col.d-flex.f-18.font-weight-bold"
	locationSelector  = "span.col-3"
	countSelector     = "span.shop-online-box"
	provinceContainer = ".card"
	provinceHeader    = ".card-header button"
)

// Listing selectors for the paginated catalog page.
const (
	productCardSelector  = ".js-product"
	productTitleSelector = ".product-title a"
	salePriceSelector    = ".price.sale-price"
	regularPriceSelector = ".price.no-sale-price"
)

// Row is an availability observation parsed out of markup, before it is
// tagged with a SKU.
type Row struct {
	Province string
	Location string
	Quantity int
}

// Listing is one product card parsed from the catalog listing page.
type Listing struct {
	Name  string
	URL   string
	Price string
}

// ParseAvailability extracts per-store rows from a product page's stock
// modal. Rows whose count field fails integer parsing are skipped, not
// treated as zero; rows with a parseable zero ARE kept, matching the
// canonical filter shared with the interactive strategy.
func ParseAvailability(html string) []Row {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var rows []Row
	doc.Find(modalSelector).Find(storeRowSelector).Each(func(_ int, sel *goquery.Selection) {
		location := strings.TrimSpace(sel.Find(locationSelector).First().Text())
		countText := strings.TrimSpace(sel.Find(countSelector).Text())
		quantity, err := strconv.Atoi(countText)
		if err != nil {
			return
		}

		province := strings.TrimSpace(sel.Closest(provinceContainer).Find(provinceHeader).Text())

		rows = append(rows, Row{
			Province: province,
			Location: location,
			Quantity: quantity,
		})
	})

	return rows
}

// ParseListing extracts product cards from one page of the paginated
// catalog. The sale price wins over the regular price when both render.
func ParseListing(html string) []Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var listings []Listing
	doc.Find(productCardSelector).Each(func(_ int, sel *goquery.Selection) {
		title := sel.Find(productTitleSelector).First()
		name := strings.TrimSpace(title.Text())
		url, _ := title.Attr("href")

		price := strings.TrimSpace(sel.Find(salePriceSelector).Text())
		if price == "" {
			price = strings.TrimSpace(sel.Find(regularPriceSelector).Text())
		}

		listings = append(listings, Listing{
			Name:  name,
			URL:   url,
			Price: price,
		})
	})

	return listings
}
