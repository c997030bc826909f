package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubGateway struct {
	fail int32
}

func (g *stubGateway) Deliver(context.Context, *Message) error {
	if atomic.LoadInt32(&g.fail) != 0 {
		return errors.New("delivery refused")
	}
	return nil
}

func newSchedulerForTest(t *testing.T, gateway Gateway) (*Scheduler, *RateLimiter) {
	t.Helper()
	cfg := DefaultConfig()
	limiter := NewRateLimiter(cfg.RateLimit)
	s := NewScheduler(cfg, limiter, gateway, nil)
	t.Cleanup(s.Shutdown)
	return s, limiter
}

func TestScheduler_AutoAdvancesPreprocessingThroughSendingToSent(t *testing.T) {
	s, limiter := newSchedulerForTest(t, &stubGateway{})
	dedup := NewDeduplicator(DefaultDedupConfig(), nil)
	t.Cleanup(dedup.Shutdown)
	ordering := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	hooks := Hooks{Dedup: dedup, RateLimit: limiter, Ordering: ordering, Scheduler: s}
	msg := NewMessage("", "orders", "payload")
	sm := NewStateMachine(msg, false, hooks)
	sm.ForceState(StatePreprocessing)

	assert.Eventually(t, func() bool {
		return sm.CurrentState() == StateSent
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_DeliveryFailureEntersRetrySubLoop(t *testing.T) {
	gateway := &stubGateway{fail: 1}
	s, limiter := newSchedulerForTest(t, gateway)
	dedup := NewDeduplicator(DefaultDedupConfig(), nil)
	t.Cleanup(dedup.Shutdown)
	ordering := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	hooks := Hooks{Dedup: dedup, RateLimit: limiter, Ordering: ordering, Scheduler: s}
	msg := NewMessage("", "orders", "payload")
	sm := NewStateMachine(msg, false, hooks)
	sm.ForceState(StateSending)

	// FAILED cascades inline through the retry sub-loop's own bookkeeping
	// states, so an external observer never catches it mid-transition.
	assert.Eventually(t, func() bool {
		return sm.CurrentState() == StateRetryDelayed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, msg.RetryCount)
}

func TestScheduler_RateLimitedRecoversOnceTokenAvailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{TokensPerSecond: 1000, Capacity: 5}
	limiter := NewRateLimiter(cfg.RateLimit)
	s := NewScheduler(cfg, limiter, &stubGateway{}, nil)
	t.Cleanup(s.Shutdown)

	dedup := NewDeduplicator(cfg.Dedup, nil)
	t.Cleanup(dedup.Shutdown)
	ordering := NewOrderingCoordinator(cfg.Ordering, nil)

	hooks := Hooks{Dedup: dedup, RateLimit: limiter, Ordering: ordering, Scheduler: s}
	msg := NewMessage("", "orders", "payload")
	sm := NewStateMachine(msg, false, hooks)
	sm.ForceState(StateRateLimited)

	assert.Eventually(t, func() bool {
		return sm.CurrentState() == StateQueued || sm.CurrentState() == StatePreprocessing
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_UnregisterCancelsOutstandingTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout.Sending = 20 * time.Millisecond
	limiter := NewRateLimiter(cfg.RateLimit)
	s := NewScheduler(cfg, limiter, &stubGateway{}, nil)
	t.Cleanup(s.Shutdown)

	dedup := NewDeduplicator(cfg.Dedup, nil)
	t.Cleanup(dedup.Shutdown)
	ordering := NewOrderingCoordinator(cfg.Ordering, nil)

	hooks := Hooks{Dedup: dedup, RateLimit: limiter, Ordering: ordering, Scheduler: s}
	msg := NewMessage("", "orders", "payload")
	sm := NewStateMachine(msg, false, hooks)
	sm.ForceState(StateSending)

	s.Unregister(msg.ID)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, StateSending, sm.CurrentState())
}
