// Package ingest fetches weather and space-weather data from upstream
// providers and normalises it into model samples.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/aurorawatch/internal/httputil"
	"github.com/lox/aurorawatch/internal/metrics"
)

// FetchResult describes one provider call for the ingest audit log.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	ParseErrors  int
	ParseError   string
	Raw          []byte
	Error        error
}

// Fetcher performs GET requests with retry on rate limiting and server errors.
type Fetcher struct {
	client     *http.Client
	maxElapsed time.Duration
	log        *slog.Logger
}

// NewFetcher returns a fetcher sending userAgent on every request.
func NewFetcher(userAgent string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		client:     httputil.NewClient(userAgent),
		maxElapsed: 2 * time.Minute,
		log:        log.With("component", "ingest"),
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// WithMaxElapsed bounds the total time spent retrying one request.
func (f *Fetcher) WithMaxElapsed(d time.Duration) *Fetcher {
	f.maxElapsed = d
	return f
}

// Get fetches url and returns the body. Responses with status 401, 403, 429
// or 5xx are retried with exponential backoff; anything else fails at once.
func (f *Fetcher) Get(ctx context.Context, provider, url string) ([]byte, *FetchResult, error) {
	result := &FetchResult{}
	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		status := "error"
		if result.HTTPStatus > 0 {
			status = strconv.Itoa(result.HTTPStatus)
		}
		metrics.ProviderCallsTotal.WithLabelValues(provider, status).Inc()
	}()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json, text/plain, */*")

		resp, err := f.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", provider, err))
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 500 {
			f.log.Debug("provider returned retryable status", "provider", provider, "status", resp.StatusCode)
			return fmt.Errorf("fetch %s: retryable status %d", provider, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", provider, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		result.Error = err
		return nil, result, err
	}

	result.ResponseSize = len(body)
	result.Raw = body
	return body, result, nil
}
