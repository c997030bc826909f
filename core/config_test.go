package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_ValidateRejectsZeroDedupWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dedup.Window = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsSubUnityBackoffMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.BackoffMultiplier = 0.5
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsZeroRateLimitCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Capacity = 0
	assert.Error(t, cfg.Validate())
}

func TestTimeoutConfig_ForFallsBackToDefault(t *testing.T) {
	tc := DefaultTimeoutConfig()
	assert.Equal(t, tc.Sending, tc.For(StateSending))
	assert.Equal(t, tc.Default, tc.For(StateRetrying))
}

func TestRetryConfig_DelayForGrowsAndCaps(t *testing.T) {
	rc := RetryConfig{
		BaseDelay:         time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Second,
		MaxRetries:        10,
	}

	assert.Equal(t, 2*time.Second, rc.DelayFor(1))
	assert.Equal(t, 4*time.Second, rc.DelayFor(2))
	assert.Equal(t, 5*time.Second, rc.DelayFor(5))
}
