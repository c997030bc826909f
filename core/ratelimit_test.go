package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_StartsFull(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{TokensPerSecond: 10, Capacity: 5})
	assert.Equal(t, int64(5), rl.Available())
}

func TestRateLimiter_TryAcquireDrainsBucket(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{TokensPerSecond: 10, Capacity: 2})

	assert.True(t, rl.TryAcquire(1))
	assert.True(t, rl.TryAcquire(1))
	assert.False(t, rl.TryAcquire(1))
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{TokensPerSecond: 1000, Capacity: 10})

	for i := 0; i < 10; i++ {
		assert.True(t, rl.TryAcquire(1))
	}
	assert.False(t, rl.TryAcquire(1))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.TryAcquire(1))
}

func TestRateLimiter_NeverExceedsCapacity(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{TokensPerSecond: 100_000, Capacity: 5})

	time.Sleep(150 * time.Millisecond)
	assert.LessOrEqual(t, rl.Available(), int64(5))
}
