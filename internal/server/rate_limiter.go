// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the relay from event floods.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a simple token bucket: a connection may burst up to
// capacity events, refilled continuously at capacity per interval.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		perSecond:  float64(capacity) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token, reporting false when the bucket is empty.
func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.perSecond)
	}
	rl.lastRefill = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
