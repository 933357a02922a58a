// Package collyfetcher implements the outbound page fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Config controls collector behavior.
type Config struct {
	BaseURL     string
	ListingPath string
	UserAgent   string
	Timeout     time.Duration
}

// Fetcher is the sole network I/O boundary for the static extraction path.
// It sends browser-like headers to avoid trivial blocking; there is no retry
// here, retry policy belongs to the queue.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the page markup.
// Non-2xx responses and transport failures both surface as *stock.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Referer", f.cfg.BaseURL+f.cfg.ListingPath)
	})

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &stock.FetchError{URL: url, StatusCode: r.StatusCode}
			return
		}
		fetchErr = &stock.FetchError{URL: url, Err: err}
	})

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		var fe *stock.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			metrics.ObserveFetch("status")
		} else {
			metrics.ObserveFetch("network")
		}
		return "", err
	}

	metrics.ObserveFetch("ok")
	return string(body), nil
}

// FetchListingPage retrieves one page of the paginated product listing used
// for catalog discovery.
func (f *Fetcher) FetchListingPage(ctx context.Context, page int) (string, error) {
	url := fmt.Sprintf("%s%s?page=%d&ajaxtrue=1&onlyproducts=1", f.cfg.BaseURL, f.cfg.ListingPath, page)
	return f.Fetch(ctx, url)
}

// Delay suspends the caller for d without blocking independent work. The
// sweep uses it between product fetches and between listing pages.
func (f *Fetcher) Delay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return &stock.FetchError{URL: url, Err: err}
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
