package msgflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/msgflow/core"
)

// ProcessorStats summarizes a Processor's lifetime activity.
type ProcessorStats struct {
	Active      int64
	Success     int64
	Failed      int64
	SuccessRate float64
}

// BatchResult is the outcome of a SubmitBatch call, one ProcessingResult per
// input message in the same order.
type BatchResult struct {
	Results []*core.ProcessingResult
}

// Processor is the external-facing facade: it owns every StateMachine's
// registry, wires the shared collaborators (Deduplicator, RateLimiter,
// OrderingCoordinator, Scheduler) a Config selects, and resolves Submit
// calls by polling a message's state until it settles.
type Processor struct {
	mu       sync.Mutex
	machines map[string]*core.StateMachine

	coreCfg   core.Config
	logger    Logger
	gateway   core.Gateway
	audit     AuditRepository
	listeners []core.Listener

	dedup     *core.Deduplicator
	limiter   *core.RateLimiter
	ordering  *core.OrderingCoordinator
	scheduler *core.Scheduler

	orderingEnabled bool

	pollInterval    time.Duration
	overallDeadline time.Duration

	active, success, failed int64
}

// NewProcessor builds a Processor from the given options. dedup, rate
// limiting, ordering, timeouts and retry all come from the resulting
// core.Config, defaulted via core.DefaultConfig and overridable with
// WithConfig.
func NewProcessor(opts ...Option) (*Processor, error) {
	p := &Processor{
		machines:        make(map[string]*core.StateMachine),
		coreCfg:         core.DefaultConfig(),
		logger:          &NoopLogger{},
		pollInterval:    100 * time.Millisecond,
		overallDeadline: 30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if err := p.coreCfg.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid configuration", err)
	}

	p.dedup = core.NewDeduplicator(p.coreCfg.Dedup, p.logger)
	p.limiter = core.NewRateLimiter(p.coreCfg.RateLimit)
	p.ordering = core.NewOrderingCoordinator(p.coreCfg.Ordering, p.logger)
	p.scheduler = core.NewScheduler(p.coreCfg, p.limiter, p.gateway, p.logger)
	p.orderingEnabled = p.coreCfg.Ordering.Enabled

	return p, nil
}

// Submit registers msg, starts it through the pipeline, and blocks until it
// reaches a terminal state or the overall deadline elapses.
func (p *Processor) Submit(ctx context.Context, msg *core.Message) (*core.ProcessingResult, error) {
	sm := p.register(msg)
	sm.Fire(core.EventStartProcessing)
	return p.await(ctx, sm)
}

// SubmitBatch submits every message concurrently and waits for all of them
// to settle. A per-message failure is reported in that message's own
// ProcessingResult, not returned as an error.
func (p *Processor) SubmitBatch(ctx context.Context, msgs []*core.Message) (*BatchResult, error) {
	results := make([]*core.ProcessingResult, len(msgs))

	var wg sync.WaitGroup
	for i, m := range msgs {
		wg.Add(1)
		go func(i int, m *core.Message) {
			defer wg.Done()
			res, err := p.Submit(ctx, m)
			if err != nil {
				res = &core.ProcessingResult{
					MessageID: m.ID,
					Outcome:   core.OutcomeError,
					Message:   err.Error(),
				}
			}
			results[i] = res
		}(i, m)
	}
	wg.Wait()

	return &BatchResult{Results: results}, nil
}

// Retry resets a DEAD_LETTER message back to INIT and resubmits it. It
// fails if id is unknown or the message isn't currently in DEAD_LETTER.
func (p *Processor) Retry(ctx context.Context, id string) (*core.ProcessingResult, error) {
	sm, ok := p.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	if sm.CurrentState() != core.StateDeadLetter {
		return nil, NewError(ErrCodeTransition, "message is not in DEAD_LETTER state")
	}
	sm.Fire(core.EventReset)
	sm.Fire(core.EventStartProcessing)
	return p.await(ctx, sm)
}

// Cancel fires CANCEL on id's machine, if one is registered and CANCEL is
// legal from its current state.
func (p *Processor) Cancel(id string) (*core.ProcessingResult, error) {
	sm, ok := p.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	result := sm.Fire(core.EventCancel)
	if !result.Success {
		return nil, NewError(ErrCodeTransition, result.ErrorMessage)
	}
	return &core.ProcessingResult{
		MessageID: id,
		State:     result.ToState,
		Outcome:   core.OutcomeFor(result.ToState),
	}, nil
}

// CurrentState returns id's current state, if id is registered.
func (p *Processor) CurrentState(id string) (core.State, bool) {
	sm, ok := p.lookup(id)
	if !ok {
		return "", false
	}
	return sm.CurrentState(), true
}

// Stats reports aggregate counters across every message this Processor has
// ever submitted.
func (p *Processor) Stats() ProcessorStats {
	active := atomic.LoadInt64(&p.active)
	success := atomic.LoadInt64(&p.success)
	failed := atomic.LoadInt64(&p.failed)

	var rate float64
	if total := success + failed; total > 0 {
		rate = float64(success) / float64(total)
	}
	return ProcessorStats{Active: active, Success: success, Failed: failed, SuccessRate: rate}
}

// AddListener registers l on every message submitted from this point
// forward. It does not retroactively attach to messages already in flight.
func (p *Processor) AddListener(l core.Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Shutdown stops every live StateMachine and the shared background
// collaborators. It does not wait for in-flight Submit/Retry calls to
// return; cancel their context for that.
func (p *Processor) Shutdown(context.Context) error {
	p.mu.Lock()
	machines := make([]*core.StateMachine, 0, len(p.machines))
	for _, sm := range p.machines {
		machines = append(machines, sm)
	}
	p.machines = make(map[string]*core.StateMachine)
	p.mu.Unlock()

	for _, sm := range machines {
		sm.Shutdown()
	}
	p.dedup.Shutdown()
	p.scheduler.Shutdown()
	return nil
}

func (p *Processor) lookup(id string) (*core.StateMachine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sm, ok := p.machines[id]
	return sm, ok
}

func (p *Processor) register(msg *core.Message) *core.StateMachine {
	hooks := core.Hooks{
		Dedup:     p.dedup,
		RateLimit: p.limiter,
		Ordering:  p.ordering,
		Scheduler: p.scheduler,
		Logger:    p.logger,
		Release:   p.release,
	}
	sm := core.NewStateMachine(msg, p.orderingEnabled, hooks)
	sm.AddListener(core.ListenerFunc(p.onTransition))

	p.mu.Lock()
	for _, l := range p.listeners {
		sm.AddListener(l)
	}
	p.machines[msg.ID] = sm
	p.mu.Unlock()

	atomic.AddInt64(&p.active, 1)
	return sm
}

// release fires ORDER_READY on the machine for a message the ordering
// coordinator just released from another machine's Complete call.
func (p *Processor) release(msg *core.Message) {
	if sm, ok := p.lookup(msg.ID); ok {
		sm.Fire(core.EventOrderReady)
	}
}

func (p *Processor) onTransition(msg *core.Message, result core.TransitionResult) {
	if !result.Success || !result.ToState.IsTerminal() {
		return
	}

	atomic.AddInt64(&p.active, -1)
	switch core.OutcomeFor(result.ToState) {
	case core.OutcomeSuccess:
		atomic.AddInt64(&p.success, 1)
	case core.OutcomeFailed, core.OutcomeDuplicate:
		atomic.AddInt64(&p.failed, 1)
	}

	if p.audit != nil && (result.ToState == core.StateDeadLetter || result.ToState == core.StateArchived) {
		go p.recordAudit(msg, result)
	}
}

// recordAudit writes an AuditRecord for a terminal transition worth a
// durable trail. A failing sink is logged and swallowed, the same
// isolation guarantee a panicking Listener gets.
func (p *Processor) recordAudit(msg *core.Message, result core.TransitionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := AuditRecord{
		MessageID:  msg.ID,
		Topic:      msg.Topic,
		FromState:  result.FromState,
		ToState:    result.ToState,
		Event:      result.Event,
		Outcome:    core.OutcomeFor(result.ToState),
		RetryCount: msg.RetryCount,
		RecordedAt: time.Now(),
	}
	if err := p.audit.RecordTransition(ctx, rec); err != nil {
		p.logger.Warnf("processor: audit sink failed for message %s: %v", msg.ID, err)
	}
}

// await polls sm's state at pollInterval until it reaches a terminal state
// or overallDeadline elapses.
func (p *Processor) await(ctx context.Context, sm *core.StateMachine) (*core.ProcessingResult, error) {
	deadline := time.Now().Add(p.overallDeadline)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		state := sm.CurrentState()
		if state.IsTerminal() {
			return p.finish(sm, state), nil
		}
		if time.Now().After(deadline) {
			return &core.ProcessingResult{
				MessageID: sm.Message().ID,
				State:     state,
				Outcome:   core.OutcomeError,
				Message:   "processing timeout",
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// finish drops sm from the registry, unless it landed in DEAD_LETTER: that
// state can still be resurrected by Retry, so its machine stays addressable.
func (p *Processor) finish(sm *core.StateMachine, state core.State) *core.ProcessingResult {
	if state != core.StateDeadLetter {
		p.mu.Lock()
		delete(p.machines, sm.Message().ID)
		p.mu.Unlock()
	}
	return &core.ProcessingResult{
		MessageID: sm.Message().ID,
		State:     state,
		Outcome:   core.OutcomeFor(state),
	}
}
