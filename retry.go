package apicore

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/q-x-iao/apicore/internal/backoff"
)

// shouldRetryResponse decides retry eligibility for a received response. An
// explicit x-should-retry header from the server overrides the status-code
// heuristics.
func shouldRetryResponse(resp *http.Response) bool {
	switch resp.Header.Get("x-should-retry") {
	case "true":
		return true
	case "false":
		return false
	}

	// Lock timeouts, rate limits and server errors are worth another try.
	if resp.StatusCode == http.StatusConflict {
		return true
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode >= 500 {
		return true
	}
	return false
}

// retryDelay computes how long to wait before the next attempt. A reasonable
// server-directed retry-after wins; otherwise exponential backoff with jitter
// keyed on how many retries have been consumed.
func retryDelay(remaining, maxRetries int, responseHeaders http.Header) time.Duration {
	if responseHeaders != nil {
		if d, ok := backoff.ParseRetryAfter(responseHeaders.Get("retry-after")); ok {
			return d
		}
	}
	return backoff.Exponential(maxRetries - remaining)
}

// isTimeout reports whether err is a timeout at the transport level.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sleepContext blocks for d, waking early if ctx is cancelled. In the
// future-based executor this is what suspends a logical request between
// attempts without holding up its siblings.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
