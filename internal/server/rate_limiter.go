package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled continuously: burst tokens per
// interval, never more than burst in the bucket.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	perSecond float64
	last      time.Time
	now       func() time.Time
	dropped   int
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return newRateLimiterWithClock(cfg, time.Now)
}

func newRateLimiterWithClock(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	burst := max(cfg.Burst, 1)
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:    float64(burst),
		capacity:  float64(burst),
		perSecond: float64(burst) / interval.Seconds(),
		last:      now(),
		now:       now,
	}
}

// allow takes a token if one is available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.last).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.perSecond)
	}
	rl.last = now

	if rl.tokens < 1 {
		rl.dropped++
		return false
	}
	rl.tokens--
	return true
}

func (rl *rateLimiter) droppedCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.dropped
}
