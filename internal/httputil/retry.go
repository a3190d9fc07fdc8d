// Package httputil wraps http.Client with capped, jittered exponential
// backoff for idempotent calls against the broker's HTTP surface.
package httputil

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/cotimer/server/internal/logging"
)

var log = logging.L("httputil")

// RetryConfig controls how often and how patiently a request is retried.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFrac    float64 // ±fraction of delay to randomize (e.g. 0.3 = ±30%)
}

// DefaultRetryConfig returns sensible defaults for lookup and health calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFrac:    0.3,
	}
}

// Client retries transient failures. Only idempotent methods belong here;
// the broker's read endpoints all qualify.
type Client struct {
	HTTP  *http.Client
	Retry RetryConfig
}

// New returns a retrying client with default timeout and backoff.
func New() *Client {
	return &Client{
		HTTP:  &http.Client{Timeout: 30 * time.Second},
		Retry: DefaultRetryConfig(),
	}
}

// Get issues a GET, retrying network errors and retryable statuses until the
// budget runs out or ctx is done. The caller owns the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	delay := c.Retry.InitialDelay

	for attempt := 0; attempt <= c.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			jittered := applyJitter(delay, c.Retry.JitterFrac)
			log.Debug("retrying request",
				"attempt", attempt,
				"delay", jittered,
				"url", url,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jittered):
			}

			delay = time.Duration(float64(delay) * c.Retry.BackoffFactor)
			if delay > c.Retry.MaxDelay {
				delay = c.Retry.MaxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err // not retryable
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue // network error, retry
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil // success or non-retryable error
		}

		resp.Body.Close()
		lastErr = &RetryableStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	log.Warn("all retries exhausted",
		"url", url,
		"attempts", c.Retry.MaxRetries+1,
		"error", lastErr,
	)
	return nil, lastErr
}

// isRetryableStatus returns true for HTTP status codes that are safe to retry.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// RetryableStatusError indicates the server returned a retryable HTTP status.
type RetryableStatusError struct {
	StatusCode int
	URL        string
}

func (e *RetryableStatusError) Error() string {
	return "request to " + e.URL + " failed after retries with status " + http.StatusText(e.StatusCode)
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := float64(d) * frac * (2*rand.Float64() - 1)
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		return 0
	}
	return result
}
