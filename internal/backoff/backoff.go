// Package backoff computes retry delays: either server-directed via a
// Retry-After header, or short exponential growth with jitter.
package backoff

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	initialDelay = 500 * time.Millisecond
	maxDelay     = 2 * time.Second

	// maxRetryAfter bounds how long the server may ask us to wait before we
	// fall back to our own schedule.
	maxRetryAfter = 60 * time.Second
)

// ParseRetryAfter interprets a Retry-After header value as integer seconds.
// Values outside (0, 60] and non-integer forms are rejected.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	d := time.Duration(seconds) * time.Second
	if d <= 0 || d > maxRetryAfter {
		return 0, false
	}
	return d, true
}

// Exponential returns the delay before wire attempt number nbRetries (1 for
// the first retry). The base grows as 0.5*(n-1)^2 seconds capped at 2s, with
// uniform jitter of plus-or-minus half a second, clamped at zero.
func Exponential(nbRetries int) time.Duration {
	if nbRetries < 1 {
		nbRetries = 1
	}

	base := time.Duration(float64(initialDelay) * float64((nbRetries-1)*(nbRetries-1)))
	if base > maxDelay {
		base = maxDelay
	}

	jitter := time.Duration((rand.Float64() - 0.5) * float64(time.Second))
	delay := base + jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}
