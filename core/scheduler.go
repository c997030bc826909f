package core

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// autoAdvanceInterval is how often the Scheduler scans registered machines
// for states that advance on their own.
const autoAdvanceInterval = 100 * time.Millisecond

// Scheduler is the single background driver shared by every StateMachine a
// Processor owns: it arms per-state timeouts, resumes delayed retries,
// polls rate-limit recovery, and auto-advances states that have no external
// trigger of their own (PREPROCESSING, SENDING, SENT).
type Scheduler struct {
	cfg     Config
	logger  Logger
	gateway Gateway
	limiter *RateLimiter
	tracer  trace.Tracer

	simulated bool

	mu       sync.Mutex
	active   map[string]*StateMachine
	timeouts map[string]*time.Timer
	retries  map[string]*time.Timer

	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler and starts its background tick
// immediately. gateway may be nil, in which case SENDING auto-advances via
// a simulated always-succeeds delivery, logged at WARN on every delivery.
func NewScheduler(cfg Config, limiter *RateLimiter, gateway Gateway, logger Logger) *Scheduler {
	if logger == nil {
		logger = &NoopLogger{}
	}
	simulated := gateway == nil
	if simulated {
		gateway = simulateGateway{}
	}
	s := &Scheduler{
		cfg:       cfg,
		logger:    logger,
		gateway:   gateway,
		limiter:   limiter,
		tracer:    otel.Tracer("github.com/coregx/msgflow/core"),
		simulated: simulated,
		active:    make(map[string]*StateMachine),
		timeouts:  make(map[string]*time.Timer),
		retries:   make(map[string]*time.Timer),
		stop:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Register adds sm to the auto-advance/recovery scan. Called when a
// StateMachine is constructed and again whenever it re-enters INIT.
func (s *Scheduler) Register(sm *StateMachine) {
	s.mu.Lock()
	s.active[sm.Message().ID] = sm
	s.mu.Unlock()
}

// Unregister removes sm from the scan and cancels any outstanding timers for
// it. Called once a machine reaches a terminal state and is dropped from the
// owning Processor's registry.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.cancelLocked(s.timeouts, id)
	s.cancelLocked(s.retries, id)
	s.mu.Unlock()
}

func (s *Scheduler) cancelLocked(timers map[string]*time.Timer, id string) {
	if t, ok := timers[id]; ok {
		t.Stop()
		delete(timers, id)
	}
}

// ArmTimeout schedules an EventTimeout fire for sm after the budget
// configured for state, replacing any previously armed timeout.
func (s *Scheduler) ArmTimeout(sm *StateMachine, state State) {
	d := s.cfg.Timeout.For(state)
	id := sm.Message().ID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.timeouts, id)
	s.timeouts[id] = time.AfterFunc(d, func() {
		s.fireTraced(sm, EventTimeout)
	})
}

// CancelTimeout stops id's armed timeout, if any. Called whenever the
// machine leaves the state the timeout was guarding.
func (s *Scheduler) CancelTimeout(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.timeouts, id)
}

// ArmRetryDelay schedules an EventRetryResume fire for sm once the backoff
// delay for attempt has elapsed.
func (s *Scheduler) ArmRetryDelay(sm *StateMachine, attempt int) {
	d := s.cfg.Retry.DelayFor(attempt)
	id := sm.Message().ID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.retries, id)
	s.retries[id] = time.AfterFunc(d, func() {
		s.fireTraced(sm, EventRetryResume)
	})
}

// CancelRetryDelay stops id's armed retry resume timer, if any.
func (s *Scheduler) CancelRetryDelay(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.retries, id)
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(autoAdvanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	snapshot := make([]*StateMachine, 0, len(s.active))
	for _, sm := range s.active {
		snapshot = append(snapshot, sm)
	}
	s.mu.Unlock()

	for _, sm := range snapshot {
		switch sm.CurrentState() {
		case StatePreprocessing:
			s.fireTraced(sm, EventPreprocessComplete)
		case StateSending, StateRetrying:
			go s.deliver(sm)
		case StateSent:
			s.fireTraced(sm, EventConfirm)
		case StateRateLimited:
			s.tryRecover(sm)
		}
	}
}

func (s *Scheduler) deliver(sm *StateMachine) {
	ctx, span := s.tracer.Start(context.Background(), "msgflow.scheduler.deliver",
		trace.WithAttributes(attribute.String("message.id", sm.Message().ID)))
	defer span.End()

	if s.simulated {
		s.logger.Warnf("scheduler: no Gateway configured, simulating delivery for message %s", sm.Message().ID)
	}

	if err := s.gateway.Deliver(ctx, sm.Message()); err != nil {
		s.logger.Warnf("scheduler: delivery failed for message %s: %v", sm.Message().ID, err)
		sm.fire(EventFail)
		return
	}
	sm.fire(EventSent)
}

// tryRecover attempts to reacquire a single token for a rate-limited
// message. It is retried every tick until it succeeds or sm leaves
// RATE_LIMITED (open question #3: a single recurring check,
// never a self-rescheduling one-shot).
func (s *Scheduler) tryRecover(sm *StateMachine) {
	if s.limiter.TryAcquire(1) {
		s.fireTraced(sm, EventRateLimitRecovered)
	}
}

func (s *Scheduler) fireTraced(sm *StateMachine, e Event) {
	ctx, span := s.tracer.Start(context.Background(), "msgflow.scheduler.task",
		trace.WithAttributes(
			attribute.String("message.id", sm.Message().ID),
			attribute.String("event", string(e)),
		))
	defer span.End()
	_ = ctx
	sm.fire(e)
}

// Shutdown stops the background tick and every outstanding timer. It does
// not touch registered StateMachines themselves.
func (s *Scheduler) Shutdown() {
	s.stopped.Do(func() { close(s.stop) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timeouts {
		t.Stop()
		delete(s.timeouts, id)
	}
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
}
