package core

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TimeoutConfig holds per-state timeout budgets. States not listed fall back
// to Default.
type TimeoutConfig struct {
	DedupChecking time.Duration
	RateLimiting  time.Duration
	Preprocessing time.Duration
	Sending       time.Duration
	Sent          time.Duration
	OrderingWait  time.Duration
	Default       time.Duration
}

// DefaultTimeoutConfig returns defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		DedupChecking: 5 * time.Second,
		RateLimiting:  3 * time.Second,
		Preprocessing: 10 * time.Second,
		Sending:       30 * time.Second,
		Sent:          60 * time.Second,
		OrderingWait:  15 * time.Second,
		Default:       30 * time.Second,
	}
}

// For returns the timeout budget for a given state, falling back to Default.
func (t TimeoutConfig) For(s State) time.Duration {
	switch s {
	case StateDedupChecking:
		return t.DedupChecking
	case StateRateLimiting:
		return t.RateLimiting
	case StatePreprocessing:
		return t.Preprocessing
	case StateSending:
		return t.Sending
	case StateSent:
		return t.Sent
	case StateOrderingWait:
		return t.OrderingWait
	default:
		return t.Default
	}
}

// RetryConfig controls the exponential backoff schedule used to space out
// RETRY_DELAYED -> RETRYING resumption.
type RetryConfig struct {
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	MaxRetries        int
}

// DefaultRetryConfig returns defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay:         500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		MaxRetries:        3,
	}
}

// DelayFor returns the backoff delay for the given retry attempt (1-based),
// capped at MaxDelay.
func (r RetryConfig) DelayFor(attempt int) time.Duration {
	delay := float64(r.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= r.BackoffMultiplier
	}
	if d := time.Duration(delay); d < time.Duration(r.MaxDelay) {
		return d
	}
	return r.MaxDelay
}

// Config aggregates every collaborator's configuration into one immutable
// value, validated once at construction with ozzo-validation.
type Config struct {
	Dedup     DedupConfig
	RateLimit RateLimitConfig
	Ordering  OrderingConfig
	Timeout   TimeoutConfig
	Retry     RetryConfig
}

// DefaultConfig returns a Config built entirely from the per-collaborator
// defaults.
func DefaultConfig() Config {
	return Config{
		Dedup:     DefaultDedupConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Ordering:  DefaultOrderingConfig(),
		Timeout:   DefaultTimeoutConfig(),
		Retry:     DefaultRetryConfig(),
	}
}

// Validate checks the configuration for internally inconsistent values
// before a StateMachine or Scheduler is built from it.
func (c Config) Validate() error {
	return validation.Errors{
		"dedup.window": validation.Validate(c.Dedup.Window,
			validation.Required, validation.Min(time.Millisecond)),
		"dedup.maxCacheSize": validation.Validate(c.Dedup.MaxCacheSize,
			validation.Min(1)),
		"rateLimit.tokensPerSecond": validation.Validate(c.RateLimit.TokensPerSecond,
			validation.Min(1)),
		"rateLimit.capacity": validation.Validate(c.RateLimit.Capacity,
			validation.Required, validation.Min(1)),
		"ordering.maxPendingMessages": validation.Validate(c.Ordering.MaxPendingMessages,
			validation.Min(1)),
		"retry.backoffMultiplier": validation.Validate(c.Retry.BackoffMultiplier,
			validation.Min(1.0)),
		"retry.maxRetries": validation.Validate(c.Retry.MaxRetries,
			validation.Min(0)),
	}.Filter()
}
