// Package httpx implements a bounded-concurrency, retrying HTTP client
// for fetching manifests and reading remote zip archives over
// unauthenticated static URLs. Unlike an authenticated API client, every
// request here carries its own fixed retry budget (the manifest loader,
// remote-zip opener, and per-file extractor each pass their own budget,
// and those budgets differ), so the budget is a per-call parameter
// rather than a client-wide constant.
package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	baseBackoff    = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "cupdater/0.1"
)

// Client issues retrying HTTP requests against unauthenticated static
// URLs, bounding the number of requests in flight at once.
type Client struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	logger     *slog.Logger

	// sleepFunc waits between retries. Defaults to timeSleep; tests
	// override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Client whose requests are bounded to at most
// connectionLimit in flight at once.
func New(timeout time.Duration, connectionLimit int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if connectionLimit <= 0 {
		connectionLimit = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		sem:        semaphore.NewWeighted(int64(connectionLimit)),
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Get issues a GET request to url, retrying up to maxRetries times on
// transient failure. The caller must close the response body on success.
func (c *Client) Get(ctx context.Context, url string, maxRetries int) (*http.Response, error) {
	return c.GetRange(ctx, url, "", maxRetries)
}

// GetRange issues a GET request to url with the given Range header (or
// no Range header if rangeHeader is empty), retrying up to maxRetries
// times on transient failure. The connection slot acquired for this
// call is held until the caller closes the response body, not merely
// until GetRange returns — otherwise an in-flight body transfer
// wouldn't count against connectionLimit at all.
func (c *Client) GetRange(ctx context.Context, url, rangeHeader string, maxRetries int) (*http.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("httpx: acquiring connection slot: %w", err)
	}

	resp, err := c.doRetry(ctx, url, http.Header{"Range": []string{rangeHeader}}, maxRetries)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}

	resp.Body = c.releaseOnClose(resp.Body)

	return resp, nil
}

// GetConditional issues a GET request to url with If-None-Match set to
// etag (when non-empty), retrying up to maxRetries times on transient
// failure. Unlike Get/GetRange, a 304 response is treated as a
// successful terminal result rather than an error, so callers can
// distinguish "unchanged" from a genuine failure.
func (c *Client) GetConditional(ctx context.Context, url, etag string, maxRetries int) (*http.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("httpx: acquiring connection slot: %w", err)
	}

	headers := http.Header{}
	if etag != "" {
		headers.Set("If-None-Match", etag)
	}

	resp, err := c.doRetry(ctx, url, headers, maxRetries)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}

	resp.Body = c.releaseOnClose(resp.Body)

	return resp, nil
}

// releaseOnClose wraps body so the connection-limit slot this request
// acquired is released when the caller closes the response body, rather
// than when the request method itself returns. Reading the body to EOF
// without closing it does not release the slot.
func (c *Client) releaseOnClose(body io.ReadCloser) io.ReadCloser {
	return &semReleaseBody{ReadCloser: body, release: func() { c.sem.Release(1) }}
}

// semReleaseBody releases its semaphore slot exactly once, on the
// first Close call.
type semReleaseBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *semReleaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)

	return err
}

func (c *Client) doRetry(ctx context.Context, url string, headers http.Header, maxRetries int) (*http.Response, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, url, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("httpx: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("url", url),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("httpx: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("httpx: %s failed after %d retries: %w", url, maxRetries, err)
		}

		if (resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices) ||
			resp.StatusCode == http.StatusNotModified {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("httpx: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

func (c *Client) doOnce(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: creating request for %s: %w", url, err)
	}

	req.Header.Set("User-Agent", userAgent)

	for key, vals := range headers {
		if key == "Range" && (len(vals) == 0 || vals[0] == "") {
			continue
		}

		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}

	return c.httpClient.Do(req) //nolint:bodyclose // caller owns the body on success; error path has no body
}

// Head issues a HEAD request to url, retrying up to maxRetries times.
func (c *Client) Head(ctx context.Context, url string, maxRetries int) (*http.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("httpx: acquiring connection slot: %w", err)
	}
	defer c.sem.Release(1)

	var attempt int

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpx: creating HEAD request for %s: %w", url, err)
		}

		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("httpx: HEAD canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("httpx: HEAD canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("httpx: HEAD %s failed after %d retries: %w", url, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		resp.Body.Close()

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("httpx: HEAD canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// retryBackoff returns the backoff duration for a retryable response,
// honoring Retry-After on 429 before falling back to calculated backoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is
// canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
