package apicore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestShouldRetryResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    bool
	}{
		{"ok", 200, nil, false},
		{"bad request", 400, nil, false},
		{"unauthorized", 401, nil, false},
		{"not found", 404, nil, false},
		{"conflict", 409, nil, true},
		{"unprocessable", 422, nil, false},
		{"rate limited", 429, nil, true},
		{"server error", 500, nil, true},
		{"bad gateway", 502, nil, true},
		{"header forces retry", 400, map[string]string{"x-should-retry": "true"}, true},
		{"header forbids retry", 500, map[string]string{"x-should-retry": "false"}, false},
		{"header garbage ignored", 500, map[string]string{"x-should-retry": "maybe"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.headers {
				resp.Header.Set(k, v)
			}
			if got := shouldRetryResponse(resp); got != tt.want {
				t.Errorf("shouldRetryResponse(%d %v) = %v, want %v", tt.status, tt.headers, got, tt.want)
			}
		})
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	headers := http.Header{}
	headers.Set("retry-after", "30")

	if got := retryDelay(1, 2, headers); got != 30*time.Second {
		t.Errorf("retryDelay = %v, want 30s verbatim", got)
	}
}

func TestRetryDelayIgnoresUnreasonableRetryAfter(t *testing.T) {
	for _, value := range []string{"0", "-5", "61", "2.5", "Wed, 21 Oct 2015 07:28:00 GMT", ""} {
		headers := http.Header{}
		headers.Set("retry-after", value)

		got := retryDelay(1, 2, headers)
		if got < 0 || got > 3*time.Second {
			t.Errorf("retry-after %q: delay %v outside backoff range", value, got)
		}
		if got == 61*time.Second {
			t.Errorf("retry-after %q taken verbatim", value)
		}
	}
}

func TestRetryDelayBackoffGrows(t *testing.T) {
	// First retry sits inside the jitter window; later ones hit the cap.
	if got := retryDelay(1, 2, nil); got < 0 || got > 500*time.Millisecond {
		t.Errorf("first retry delay %v outside [0, 0.5s]", got)
	}
	if got := retryDelay(0, 3, nil); got < 1500*time.Millisecond || got > 2500*time.Millisecond {
		t.Errorf("third retry delay %v outside capped window [1.5s, 2.5s]", got)
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should be a timeout")
	}
	if isTimeout(errors.New("plain")) {
		t.Error("plain error should not be a timeout")
	}
	if isTimeout(context.Canceled) {
		t.Error("cancellation is not a timeout")
	}
}

func TestSleepContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleepContext did not wake on cancellation, slept %v", elapsed)
	}
}

func TestSleepContextZeroDelay(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero delay should not error, got %v", err)
	}
}
