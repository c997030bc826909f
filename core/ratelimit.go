package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// RateLimitConfig configures the token bucket.
type RateLimitConfig struct {
	TokensPerSecond       int
	Capacity              int
	RecoveryCheckInterval time.Duration
}

// DefaultRateLimitConfig returns defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		TokensPerSecond:       100,
		Capacity:              200,
		RecoveryCheckInterval: 100 * time.Millisecond,
	}
}

// minRefillInterval bounds refill attempts to at most once per window
// regardless of contention.
const minRefillInterval = 100 * time.Millisecond

// RateLimiter is a token bucket with lazy refill, safe under concurrent
// access: refill is guarded by a single-writer lock with a double-check,
// token accounting is CAS-protected so no caller can over-grant.
type RateLimiter struct {
	cfg RateLimitConfig

	tokens     int64 // atomic
	lastRefill int64 // atomic, unix nanos

	refillMu sync.Mutex
}

// NewRateLimiter creates a RateLimiter whose bucket starts full.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:        cfg,
		tokens:     int64(cfg.Capacity),
		lastRefill: time.Now().UnixNano(),
	}
}

// TryAcquire attempts to atomically withdraw n tokens. Never blocks.
func (r *RateLimiter) TryAcquire(n int64) bool {
	r.maybeRefill()

	for {
		current := atomic.LoadInt64(&r.tokens)
		if current < n {
			return false
		}
		if atomic.CompareAndSwapInt64(&r.tokens, current, current-n) {
			return true
		}
		// CAS lost the race to a concurrent acquire/refill; retry.
	}
}

// maybeRefill refills the bucket if at least minRefillInterval has elapsed
// since the last refill, under a tryLock-style single-writer section with a
// double-check to avoid redundant refills under contention.
func (r *RateLimiter) maybeRefill() {
	now := time.Now()
	last := atomic.LoadInt64(&r.lastRefill)
	if now.Sub(time.Unix(0, last)) < minRefillInterval {
		return
	}

	if !r.refillMu.TryLock() {
		return
	}
	defer r.refillMu.Unlock()

	last = atomic.LoadInt64(&r.lastRefill)
	elapsed := now.Sub(time.Unix(0, last))
	if elapsed < minRefillInterval {
		return
	}

	toAdd := int64(elapsed) * int64(r.cfg.TokensPerSecond) / int64(time.Second)
	if toAdd <= 0 {
		atomic.StoreInt64(&r.lastRefill, now.UnixNano())
		return
	}

	for {
		current := atomic.LoadInt64(&r.tokens)
		next := current + toAdd
		if next > int64(r.cfg.Capacity) {
			next = int64(r.cfg.Capacity)
		}
		if atomic.CompareAndSwapInt64(&r.tokens, current, next) {
			break
		}
	}
	atomic.StoreInt64(&r.lastRefill, now.UnixNano())
}

// Available returns the current token count after a refill attempt, for
// stats/tests.
func (r *RateLimiter) Available() int64 {
	r.maybeRefill()
	return atomic.LoadInt64(&r.tokens)
}
