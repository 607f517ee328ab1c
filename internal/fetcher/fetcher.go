// Package fetcher retrieves raw HTML for a URL, grounded on
// crawler/internal/crawler/collector.go's colly.Collector setup,
// narrowed from multi-page crawling down to a single-URL synchronous
// fetch per ares-core/src/traits.rs's Fetcher trait.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	colly "github.com/gocolly/colly/v2"

	"github.com/andreabozzo/ares/internal/apperrors"
)

// Config tunes the underlying collector.
type Config struct {
	UserAgent             string
	Timeout               time.Duration
	InsecureSkipTLSVerify bool
	PerHostDelay          time.Duration
}

// DefaultConfig mirrors the teacher crawler's collector defaults, scaled
// down for a single-request fetcher.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "ares-scraper/1.0",
		Timeout:      30 * time.Second,
		PerHostDelay: 2 * time.Second,
	}
}

// Fetcher retrieves a single page's raw HTML over HTTP.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg}
}

// Fetch retrieves the raw HTML body at url. Unlike the teacher's
// multi-page crawler, each call creates a fresh single-purpose collector:
// jobs target arbitrary, unrelated hosts, so there is no shared crawl
// frontier or rate-limit state carried between calls. PerHostDelay is
// enforced by that call's own collector only, so it does not space out
// separate Fetch calls to the same host.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.PerHostDelay > 0 {
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: f.cfg.PerHostDelay, Parallelism: 1})
	}
	// Binding the transport to ctx means a caller cancellation aborts the
	// in-flight request immediately instead of leaving the background
	// goroutine below running until colly's own cfg.Timeout elapses.
	c.WithTransport(&ctxBoundTransport{
		ctx: ctx,
		base: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: f.cfg.InsecureSkipTLSVerify}, //nolint:gosec
		},
	})

	// resultCh is buffered so the goroutine below never blocks on the send:
	// if ctx is cancelled first, nobody is left to receive, and the
	// goroutine (still possibly waiting out colly's per-host rate-limit
	// delay, which isn't bound to ctx) must still be able to finish and
	// exit on its own. Each invocation owns its own unshared fetchResult,
	// so there is no concurrent access between this goroutine and the
	// caller: the only handoff is the channel itself.
	resultCh := make(chan fetchResult, 1)
	go func() {
		var res fetchResult
		c.OnResponse(func(r *colly.Response) {
			res.html = string(r.Body)
			res.statusCode = r.StatusCode
		})
		c.OnError(func(r *colly.Response, err error) {
			res.statusCode = r.StatusCode
			res.err = err
		})

		if err := c.Visit(url); err != nil {
			res.err = err
		} else {
			c.Wait()
		}
		resultCh <- res
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewTimeout(int(f.cfg.Timeout.Seconds()))
		}
		// ctx.Err() is context.Canceled: the caller gave up (e.g. worker
		// shutdown), not an actual timeout, so this must not count as a
		// retryable/circuit-tripping failure against the target host.
		return "", apperrors.NewGeneric("fetch cancelled", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return "", classifyFetchError(res.err, res.statusCode)
		}
		return res.html, nil
	}
}

type fetchResult struct {
	html       string
	statusCode int
	err        error
}

// ctxBoundTransport ties every request it round-trips to ctx, so cancelling
// ctx aborts the in-flight HTTP request (and, transitively, the goroutine
// driving c.Visit/c.Wait in Fetch) instead of leaving it running until the
// collector's own request timeout elapses.
type ctxBoundTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *ctxBoundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func classifyFetchError(err error, statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimit()
	case statusCode == http.StatusRequestTimeout:
		return apperrors.NewTimeout(0)
	case statusCode == 0:
		// No HTTP status means the request never got a response at all:
		// DNS failure, connection refused, connection reset. That's a
		// network-layer failure, not an HTTP one, and must stay retryable
		// and circuit-tripping regardless of the underlying message text.
		return apperrors.NewNetwork(fmt.Sprintf("fetch failed: %v", err), err)
	default:
		return apperrors.NewHTTP(fmt.Sprintf("fetch failed (status %d): %v", statusCode, err), err)
	}
}
