// Package ratelimit throttles sensitive endpoints with fixed-window counters
// kept in the shared TTL store, so limits hold across all service processes.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// CounterStore is the subset of the TTL store used for windowed counters.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)
}

// Result is the outcome of a rate-limit check. When Allowed is false the
// caller must not execute the guarded operation and should surface RetryAfter.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter throttles requests per purpose, route, and client identifier.
type Limiter struct {
	store CounterStore
}

// New returns a Limiter over the given counter store.
func New(store CounterStore) *Limiter {
	return &Limiter{store: store}
}

// Check increments the counter for (purpose, route, client) and reports
// whether the request is within limit for the window. Counter keys compose
// all three parts, so different endpoints and different clients never share
// a window.
//
// A store outage fails open: rate limiting is a secondary system and must
// not take the service down with it. The failure is logged.
func (l *Limiter) Check(ctx context.Context, purpose, route, client string, limit int, window time.Duration) Result {
	key := fmt.Sprintf("%s:%s:%s", purpose, route, client)

	count, err := l.store.IncrementCounter(ctx, key, window)
	if err != nil {
		log.Printf("ratelimit: counter for %s unavailable, allowing: %v", key, err)
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if count <= int64(limit) {
		return Result{Allowed: true, Limit: limit, Remaining: remaining}
	}

	retryAfter, err := l.store.RemainingTTL(ctx, key)
	if err != nil || retryAfter <= 0 {
		retryAfter = window
	}
	return Result{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retryAfter}
}

// ParseRate parses a limit in "count/period" form (e.g. "5/minute",
// "100/hour") into a count and window length.
func ParseRate(rate string) (int, time.Duration, error) {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: invalid rate %q", rate)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("ratelimit: invalid count in rate %q", rate)
	}
	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("ratelimit: invalid period in rate %q", rate)
	}
	return count, window, nil
}
