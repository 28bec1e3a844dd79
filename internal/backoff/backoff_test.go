package backoff

import (
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{"integer seconds", "30", 30 * time.Second, true},
		{"upper bound", "60", 60 * time.Second, true},
		{"above upper bound", "61", 0, false},
		{"zero", "0", 0, false},
		{"negative", "-1", 0, false},
		{"empty", "", 0, false},
		{"http date", "Fri, 31 Dec 1999 23:59:59 GMT", 0, false},
		{"whitespace", " 5 ", 5 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExponentialBounds(t *testing.T) {
	tests := []struct {
		nbRetries int
		min, max  time.Duration
	}{
		// base 0s + jitter in [-0.5s, 0.5s], clamped at 0
		{1, 0, 500 * time.Millisecond},
		// base 0.5s
		{2, 0, time.Second},
		// base capped at 2s
		{3, 1500 * time.Millisecond, 2500 * time.Millisecond},
		{10, 1500 * time.Millisecond, 2500 * time.Millisecond},
	}
	for _, tt := range tests {
		for i := 0; i < 100; i++ {
			d := Exponential(tt.nbRetries)
			if d < tt.min || d > tt.max {
				t.Fatalf("Exponential(%d) = %v, want within [%v, %v]", tt.nbRetries, d, tt.min, tt.max)
			}
		}
	}
}

func TestExponentialNeverNegative(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if d := Exponential(1); d < 0 {
			t.Fatalf("Exponential(1) = %v, want >= 0", d)
		}
	}
}
