package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// APIError represents a non-throttle error response from the data source.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a local retry.
// Throttling is deliberately excluded: it is handled at chunk scope.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// RateLimitError signals that the data source is throttling the caller.
// It propagates to the batch orchestrator, which retries the whole chunk
// with backoff; it is never retried locally.
type RateLimitError struct {
	Ticker string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited fetching %s", e.Ticker)
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// doRequest performs a single paced GET request.
func (c *Client) doRequest(ctx context.Context, ticker, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "volume-data-snapshotter/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Ticker: ticker}
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with jittered exponential backoff on
// transient failures. Rate-limit signals and client errors pass through
// immediately.
func (c *Client) doWithRetry(ctx context.Context, ticker, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying request",
				"ticker", ticker,
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, ticker, path, query)
		if err == nil {
			return body, nil
		}

		lastErr = err

		if IsRateLimited(err) {
			return nil, err
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
