// Package browser implements the interactive extraction strategy with a
// scriptable Chrome session driven by chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Selectors for the interactive walk across the product page. As with the
// static parser, an absent element means "no stock here", never a fault.
const (
	stockIndicatorSelector   = `#storeinfo > div > div > p:nth-child(3)`
	checkOtherStoresSelector = `a[data-target="#checkothertores"] span.link-active`
	modalBodySelector        = `.modal-body`
	collapseToggleSelector   = `button[data-toggle="collapse"]`
	expandIconSelector       = `i.fa-regular.collapse-icon.fa-plus`
	soldOutMarker            = "sold out"
)

// Config controls the browser session.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
	Settle     time.Duration
	Headless   bool
}

// Driver implements stock.SessionStrategy. One exclusive browser session is
// held for a whole sweep: StartSession at sweep start, CloseSession at sweep
// end, every tracked product visited through the same tab.
type Driver struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc

	session       context.Context
	sessionCancel context.CancelFunc
}

// New creates a Driver with its Chrome exec allocator. The browser process
// itself starts lazily on StartSession.
func New(cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Driver{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close tears down the allocator. Any open session is closed first.
func (d *Driver) Close() {
	d.CloseSession()
	d.allocCancel()
}

// StartSession launches the browser tab used for the whole sweep. A launch
// failure is a sweep-level error: there is nothing per-product to degrade to.
func (d *Driver) StartSession(ctx context.Context) error {
	if d.session != nil {
		return errors.New("browser session already open")
	}

	taskCtx, taskCancel := chromedp.NewContext(d.allocator)

	actions := []chromedp.Action{chromedp.ActionFunc(func(c context.Context) error {
		if d.cfg.UserAgent == "" {
			return nil
		}
		return emulation.SetUserAgentOverride(d.cfg.UserAgent).Do(c)
	})}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		taskCancel()
		return fmt.Errorf("start browser session: %w", err)
	}

	select {
	case <-ctx.Done():
		taskCancel()
		return fmt.Errorf("start browser session: %w", ctx.Err())
	default:
	}

	d.session = taskCtx
	d.sessionCancel = taskCancel
	return nil
}

// CloseSession releases the browser tab. Safe to call when no session is open.
func (d *Driver) CloseSession() {
	if d.sessionCancel != nil {
		d.sessionCancel()
	}
	d.session = nil
	d.sessionCancel = nil
}

type storeRow struct {
	Province string `json:"province"`
	Location string `json:"location"`
	Count    string `json:"count"`
}

type elementProbe struct {
	Found bool   `json:"found"`
	HTML  string `json:"html"`
}

// CheckAvailability walks one product page:
// navigate, check the stock indicator, bail on sold-out, open the
// per-store modal, expand every province section, read the counts.
// Any error during the walk is logged and yields an empty result so the
// sweep continues with the next product.
func (d *Driver) CheckAvailability(ctx context.Context, product stock.Product) ([]stock.Result, error) {
	if d.session == nil {
		return nil, errors.New("browser session not started")
	}

	results, err := d.walkProduct(product)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("check availability for %s: %w", product.SKU, ctx.Err())
		}
		d.logger.Warn("product walk failed",
			zap.String("sku", product.SKU),
			zap.String("url", product.URL),
			zap.Error(err),
		)
		return nil, nil
	}
	return results, nil
}

func (d *Driver) walkProduct(product stock.Product) ([]stock.Result, error) {
	tctx, cancel := context.WithTimeout(d.session, d.cfg.NavTimeout)
	defer cancel()

	var indicator elementProbe
	err := chromedp.Run(tctx,
		chromedp.Navigate(product.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(probeJS(stockIndicatorSelector), &indicator),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if !indicator.Found {
		return nil, nil
	}
	if isSoldOut(indicator.HTML) {
		d.logger.Debug("product sold out", zap.String("sku", product.SKU))
		return nil, nil
	}

	var modalButton elementProbe
	if err := chromedp.Run(tctx, chromedp.Evaluate(probeJS(checkOtherStoresSelector), &modalButton)); err != nil {
		return nil, fmt.Errorf("probe modal button: %w", err)
	}
	if !modalButton.Found {
		return nil, nil
	}

	err = chromedp.Run(tctx,
		chromedp.Click(checkOtherStoresSelector, chromedp.ByQuery),
		chromedp.WaitVisible(modalBodySelector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("open store modal: %w", err)
	}

	if err := d.expandSections(tctx); err != nil {
		return nil, fmt.Errorf("expand sections: %w", err)
	}

	var rows []storeRow
	if err := chromedp.Run(tctx, chromedp.Evaluate(extractRowsJS, &rows)); err != nil {
		return nil, fmt.Errorf("extract counts: %w", err)
	}

	results := rowsToResults(product.SKU, rows)
	d.logger.Debug("walked product page",
		zap.String("sku", product.SKU),
		zap.Int("rows", len(results)),
	)
	return results, nil
}

// expandSections clicks every collapse toggle in the modal. Each click waits
// for the opened section to report itself shown, with a bounded poll; a
// short settle buffer remains as a fallback for the site's animation, not as
// the primary synchronization.
func (d *Driver) expandSections(ctx context.Context) error {
	var toggles int
	countJS := fmt.Sprintf("document.querySelectorAll(%q).length", collapseToggleSelector)
	if err := chromedp.Run(ctx, chromedp.Evaluate(countJS, &toggles)); err != nil {
		return fmt.Errorf("count toggles: %w", err)
	}

	for i := 0; i < toggles; i++ {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickToggleJS(i), &clicked)); err != nil {
			return fmt.Errorf("click toggle %d: %w", i, err)
		}
		if !clicked {
			continue
		}

		var ready bool
		pollErr := chromedp.Run(ctx, chromedp.Poll(
			fmt.Sprintf("document.querySelectorAll('.collapse.show').length >= %d", i+1),
			&ready,
			chromedp.WithPollingTimeout(2*time.Second),
		))
		if pollErr != nil && !errors.Is(pollErr, chromedp.ErrPollingTimeout) {
			return fmt.Errorf("wait for section %d: %w", i, pollErr)
		}

		if err := chromedp.Run(ctx, chromedp.Sleep(d.cfg.Settle)); err != nil {
			return fmt.Errorf("settle after toggle %d: %w", i, err)
		}
	}
	return nil
}

func isSoldOut(innerHTML string) bool {
	return strings.Contains(strings.ToLower(innerHTML), soldOutMarker)
}

// rowsToResults applies the canonical row filter: every row with a
// parseable count is kept, including zeroes, matching the static strategy.
func rowsToResults(sku string, rows []storeRow) []stock.Result {
	results := make([]stock.Result, 0, len(rows))
	for _, row := range rows {
		quantity, err := strconv.Atoi(strings.TrimSpace(row.Count))
		if err != nil {
			continue
		}
		results = append(results, stock.Result{
			SKU:      sku,
			Province: strings.TrimSpace(row.Province),
			Location: strings.TrimSpace(row.Location),
			Quantity: quantity,
		})
	}
	return results
}

func probeJS(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	return { found: !!el, html: el ? el.innerHTML : '' };
})()`, selector)
}

func clickToggleJS(index int) string {
	return fmt.Sprintf(`(() => {
	const toggle = document.querySelectorAll(%q)[%d];
	if (!toggle) return false;
	toggle.click();
	const icon = toggle.querySelector(%q);
	if (icon) icon.click();
	return true;
})()`, collapseToggleSelector, index, expandIconSelector)
}

const extractRowsJS = `(() => {
	const rows = [];
	for (const card of document.querySelectorAll('.card')) {
		const header = card.querySelector('.btn-block');
		if (!header) continue;
		const province = header.innerText.trim();
		for (const row of card.querySelectorAll('.row.mx-0.align-items-center')) {
			const location = row.querySelector('.col-3');
			const box = row.querySelector('.shop-online-box');
			if (!location || !box) continue;
			rows.push({
				province: province,
				location: location.innerText.trim(),
				count: box.innerText.trim(),
			});
		}
	}
	return rows;
})()`
