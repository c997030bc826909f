package core

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// eventForceState is used only for the synthetic TransitionResult produced
// by ForceState, which bypasses the transition table entirely.
const eventForceState Event = "FORCE_STATE"

// defaultTransitionTable is immutable, static data shared by every
// StateMachine; building it once avoids repeating the same allocation per
// message.
var defaultTransitionTable = newTransitionTable()

// Hooks bundles every collaborator a StateMachine drives itself
// through on the collaborator-owning engine's behalf. All fields except
// Release are shared by every StateMachine the owning Processor creates;
// Release is how a StateMachine that just freed an ordering partition slot
// wakes up whichever sibling machine was parked behind it.
type Hooks struct {
	Dedup     *Deduplicator
	RateLimit *RateLimiter
	Ordering  *OrderingCoordinator
	Scheduler *Scheduler
	Logger    Logger
	Release   func(m *Message)
}

// StateMachine drives one Message through the pipeline. All mutation is
// serialized through mu; the machine performs its own admission checks
// (dedup, rate limit, order) synchronously and inline, and delegates
// anything requiring a wait (timeouts, retry backoff, delivery, rate-limit
// recovery) to the shared Scheduler.
type StateMachine struct {
	mu              sync.Mutex
	msg             *Message
	table           *transitionTable
	orderingEnabled bool
	hooks           Hooks
	listeners       []Listener
	tracer          trace.Tracer
}

// NewStateMachine creates a StateMachine for msg, in msg's current state
// (normally StateInit), and registers it with the shared Scheduler.
func NewStateMachine(msg *Message, orderingEnabled bool, hooks Hooks) *StateMachine {
	if hooks.Logger == nil {
		hooks.Logger = &NoopLogger{}
	}
	if hooks.Release == nil {
		hooks.Release = func(*Message) {}
	}
	sm := &StateMachine{
		msg:             msg,
		table:           defaultTransitionTable,
		orderingEnabled: orderingEnabled,
		hooks:           hooks,
		tracer:          otel.Tracer("github.com/coregx/msgflow/core"),
	}
	hooks.Scheduler.Register(sm)
	return sm
}

// Message returns the Message this machine owns. Only its immutable fields
// (ID, Topic, ...) should be read without going through CurrentState.
func (sm *StateMachine) Message() *Message {
	return sm.msg
}

// CurrentState returns the machine's current state.
func (sm *StateMachine) CurrentState() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.msg.State()
}

// CanFire reports whether event e is legal from the machine's current state.
func (sm *StateMachine) CanFire(e Event) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.table.allowed(sm.msg.State(), e)
}

// AddListener registers l to observe every future transition.
func (sm *StateMachine) AddListener(l Listener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, l)
}

// Fire applies event e to the machine's current state. Invalid events
// return a TransitionResult with Success=false rather than an error: an
// illegal event is an expected, frequent outcome (e.g. a late CANCEL racing
// a CONFIRM), not an exceptional one.
func (sm *StateMachine) Fire(e Event) TransitionResult {
	return sm.fire(e)
}

func (sm *StateMachine) fire(e Event) TransitionResult {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.fireLocked(e)
}

func (sm *StateMachine) fireLocked(e Event) TransitionResult {
	from := sm.msg.State()
	next, ok := sm.table.next(from, e, sm.msg, sm.orderingEnabled)
	if !ok {
		result := invalidResult(from, e)
		sm.notify(result)
		return result
	}

	_, span := sm.tracer.Start(context.Background(), "msgflow.transition",
		trace.WithAttributes(
			attribute.String("message.id", sm.msg.ID),
			attribute.String("from", string(from)),
			attribute.String("to", string(next)),
			attribute.String("event", string(e)),
		))
	sm.hooks.Scheduler.CancelTimeout(sm.msg.ID)
	sm.msg.setState(next)
	span.End()

	result := successResult(from, next, e)
	sm.notify(result)
	sm.postTransition(next)
	return result
}

// ForceState overrides the machine's state directly, bypassing the
// transition table. Used by administrative tooling and tests, never by the
// normal pipeline flow.
func (sm *StateMachine) ForceState(s State) TransitionResult {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.msg.State()
	sm.hooks.Scheduler.CancelTimeout(sm.msg.ID)
	sm.msg.setState(s)
	result := successResult(from, s, eventForceState)
	sm.notify(result)
	sm.postTransition(s)
	return result
}

func (sm *StateMachine) notify(result TransitionResult) {
	for _, l := range sm.listeners {
		sm.notifyOne(l, result)
	}
}

func (sm *StateMachine) notifyOne(l Listener, result TransitionResult) {
	defer func() {
		if r := recover(); r != nil {
			sm.hooks.Logger.Errorf("statemachine: listener panicked for message %s: %v", sm.msg.ID, r)
		}
	}()
	l.OnTransition(sm.msg, result)
}

// postTransition performs the work a newly-entered state requires: arming
// its timeout budget, and, for every state whose next move needs no
// external input (admission checks, the retry sub-loop's own bookkeeping
// states, archiving), cascading the resulting event inline rather than
// waiting for an external caller or the Scheduler's tick.
func (sm *StateMachine) postTransition(state State) {
	if state.IsTerminal() {
		sm.hooks.Scheduler.Unregister(sm.msg.ID)
	} else {
		sm.hooks.Scheduler.ArmTimeout(sm, state)
	}

	switch state {
	case StateDedupChecking:
		if sm.hooks.Dedup.Check(sm.msg) == Duplicate {
			sm.fireLocked(EventDedupDuplicate)
		} else {
			sm.fireLocked(EventDedupPass)
		}

	case StateRateLimiting:
		if sm.hooks.RateLimit.TryAcquire(1) {
			sm.fireLocked(EventRateLimitPass)
		} else {
			sm.fireLocked(EventRateLimitExceeded)
		}

	case StateQueued:
		sm.fireLocked(EventCheckOrder)

	case StateOrderingWait:
		if sm.hooks.Ordering.IsReady(sm.msg) == Ready {
			sm.fireLocked(EventOrderReady)
		}

	case StatePreprocessing:
		if sm.orderingEnabled {
			for _, released := range sm.hooks.Ordering.Complete(sm.msg) {
				sm.hooks.Release(released)
			}
		}

	case StateFailed, StateTimeout:
		sm.fireLocked(EventPrepareRetry)

	case StateRetryPreparing:
		sm.fireLocked(EventDelayRetry)

	case StateRetryDelayed:
		sm.hooks.Scheduler.ArmRetryDelay(sm, sm.msg.RetryCount)

	case StateArchiving:
		sm.fireLocked(EventArchiveComplete)

	case StateInit:
		sm.hooks.Scheduler.Register(sm)
	}
}

// Shutdown removes the machine from the Scheduler's scan and cancels any
// timer it still has outstanding.
func (sm *StateMachine) Shutdown() {
	sm.hooks.Scheduler.Unregister(sm.msg.ID)
}
