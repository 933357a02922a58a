package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const modalFixture = `
<html><body>
<div id="checkothertores" class="modal" aria-hidden="true">
  <div class="modal-body">
    <div class="card">
      <div class="card-header"><button class="btn-block">Ontario</button></div>
      <div class="collapse">
        <div class="row mx-0 align-items-center col d-flex f-18 font-weight-bold">
          <span class="col-3">Waterloo</span>
          <span class="shop-online-box">3</span>
        </div>
        <div class="row mx-0 align-items-center col d-flex f-18 font-weight-bold">
          <span class="col-3">Ottawa</span>
          <span class="shop-online-box">0</span>
        </div>
        <div class="row mx-0 align-items-center col d-flex f-18 font-weight-bold">
          <span class="col-3">Mississauga</span>
          <span class="shop-online-box">Call store</span>
        </div>
      </div>
    </div>
    <div class="card">
      <div class="card-header"><button class="btn-block">British Columbia</button></div>
      <div class="collapse">
        <div class="row mx-0 align-items-center col d-flex f-18 font-weight-bold">
          <span class="col-3">Burnaby</span>
          <span class="shop-online-box">12</span>
        </div>
      </div>
    </div>
  </div>
</div>
</body></html>`

func TestParseAvailabilityExtractsRows(t *testing.T) {
	t.Parallel()

	rows := ParseAvailability(modalFixture)

	// Three numeric rows survive; the "Call store" row is discarded, not zeroed.
	require.Len(t, rows, 3)
	require.Equal(t, Row{Province: "Ontario", Location: "Waterloo", Quantity: 3}, rows[0])
	require.Equal(t, Row{Province: "Ontario", Location: "Ottawa", Quantity: 0}, rows[1])
	require.Equal(t, Row{Province: "British Columbia", Location: "Burnaby", Quantity: 12}, rows[2])
}

func TestParseAvailabilityKeepsZeroQuantityRows(t *testing.T) {
	t.Parallel()

	rows := ParseAvailability(modalFixture)

	var zeros int
	for _, row := range rows {
		if row.Quantity == 0 {
			zeros++
		}
	}
	require.Equal(t, 1, zeros)
}

func TestParseAvailabilityMalformedMarkup(t *testing.T) {
	t.Parallel()

	require.Empty(t, ParseAvailability(""))
	require.Empty(t, ParseAvailability("<html><body><p>sold out</p></body></html>"))
	require.Empty(t, ParseAvailability("<div class=\"modal-body\"><div class=\"card\"></div></div>"))
}

const listingFixture = `
<div class="container">
  <div class="js-product">
    <div class="product-title"><a href="/en/268153/zotac-rtx-5080.html">ZOTAC RTX 5080 Solid OC</a></div>
    <span class="price sale-price">$1,499.99</span>
    <span class="price no-sale-price">$1,699.99</span>
  </div>
  <div class="js-product">
    <div class="product-title"><a href="/en/267255/asus-rx-9070.html">ASUS Prime RX 9070 OC</a></div>
    <span class="price no-sale-price">$949.00</span>
  </div>
</div>`

func TestParseListingExtractsProducts(t *testing.T) {
	t.Parallel()

	listings := ParseListing(listingFixture)

	require.Len(t, listings, 2)
	require.Equal(t, "ZOTAC RTX 5080 Solid OC", listings[0].Name)
	require.Equal(t, "/en/268153/zotac-rtx-5080.html", listings[0].URL)
	require.Equal(t, "$1,499.99", listings[0].Price, "sale price wins over regular price")
	require.Equal(t, "$949.00", listings[1].Price)
}

func TestParseListingEmptyPage(t *testing.T) {
	t.Parallel()

	require.Empty(t, ParseListing("<html><body>No more products</body></html>"))
}
