// Package ratelimit caps how often an account may submit verification
// requests, using a sliding window so bursts at a window boundary cannot
// double the allowance.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// RetryAfter returns the whole seconds a denied caller should wait.
func (r Result) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	return max(1, int(math.Ceil(r.ResetAt.Sub(now).Seconds())))
}

// Store counts requests per key over a sliding window.
type Store interface {
	// Allow records one request for key when fewer than limit were recorded
	// within window, and reports the outcome either way.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}
