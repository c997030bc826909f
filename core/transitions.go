package core

// transitionTable is a static description of every legal (State, Event)
// pair and the successor State it produces. It is configuration-invariant:
// it never changes once built, and is indexed purely by data, not by
// subtyping.
//
// A handful of successors depend on the message or the machine's config
// (ordering enabled, canRetry); those are resolved by a resolver func
// rather than a bare State, keeping the table itself still pure data for
// the unconditional edges.
type transitionTable struct {
	edges map[State]map[Event]resolver
}

// resolver computes the successor state for one (state, event) edge given
// the message and whether ordering is enabled for the owning machine. It
// returns ok=false when the edge is guarded and the guard fails, which the
// caller maps to an invalid transition.
type resolver func(m *Message, orderingEnabled bool) (State, bool)

func fixed(s State) resolver {
	return func(*Message, bool) (State, bool) { return s, true }
}

func newTransitionTable() *transitionTable {
	t := &transitionTable{edges: make(map[State]map[Event]resolver)}

	t.add(StateInit, EventStartProcessing, fixed(StateDedupChecking))
	t.add(StateInit, EventCancel, fixed(StateCancelled))
	t.add(StateInit, EventExpire, fixed(StateExpired))

	t.add(StateDedupChecking, EventDedupPass, fixed(StateRateLimiting))
	t.add(StateDedupChecking, EventDedupDuplicate, fixed(StateDuplicate))
	t.add(StateDedupChecking, EventTimeout, fixed(StateTimeout))
	t.add(StateDedupChecking, EventCancel, fixed(StateCancelled))

	t.add(StateRateLimiting, EventRateLimitPass, fixed(StateQueued))
	t.add(StateRateLimiting, EventRateLimitExceeded, fixed(StateRateLimited))
	t.add(StateRateLimiting, EventTimeout, fixed(StateTimeout))
	t.add(StateRateLimiting, EventCancel, fixed(StateCancelled))

	t.add(StateRateLimited, EventRateLimitRecovered, fixed(StateQueued))
	t.add(StateRateLimited, EventTimeout, fixed(StateTimeout))
	t.add(StateRateLimited, EventCancel, fixed(StateCancelled))

	t.add(StateQueued, EventCheckOrder, func(_ *Message, orderingEnabled bool) (State, bool) {
		if orderingEnabled {
			return StateOrderingWait, true
		}
		return StatePreprocessing, true
	})
	t.add(StateQueued, EventPreprocess, fixed(StatePreprocessing))
	t.add(StateQueued, EventTimeout, fixed(StateTimeout))
	t.add(StateQueued, EventCancel, fixed(StateCancelled))

	t.add(StateOrderingWait, EventOrderReady, fixed(StatePreprocessing))
	t.add(StateOrderingWait, EventTimeout, fixed(StateTimeout))
	t.add(StateOrderingWait, EventCancel, fixed(StateCancelled))

	t.add(StatePreprocessing, EventPreprocessComplete, fixed(StateSending))
	t.add(StatePreprocessing, EventFail, fixed(StateFailed))
	t.add(StatePreprocessing, EventTimeout, fixed(StateTimeout))
	t.add(StatePreprocessing, EventCancel, fixed(StateCancelled))

	t.add(StateSending, EventSent, fixed(StateSent))
	t.add(StateSending, EventFail, fixed(StateFailed))
	t.add(StateSending, EventPauseSend, fixed(StateSendPaused))
	t.add(StateSending, EventTimeout, fixed(StateTimeout))
	t.add(StateSending, EventCancel, fixed(StateCancelled))

	t.add(StateSendPaused, EventResumeSend, fixed(StateSending))
	t.add(StateSendPaused, EventCancel, fixed(StateCancelled))
	t.add(StateSendPaused, EventTimeout, fixed(StateTimeout))

	t.add(StateSent, EventConfirm, fixed(StateConfirmed))
	t.add(StateSent, EventPartialConfirm, fixed(StatePartialConfirmed))
	t.add(StateSent, EventFail, fixed(StateFailed))
	t.add(StateSent, EventTimeout, fixed(StateTimeout))
	t.add(StateSent, EventCancel, fixed(StateCancelled))

	t.add(StatePartialConfirmed, EventConfirm, fixed(StateConfirmed))
	t.add(StatePartialConfirmed, EventPartialConfirm, fixed(StatePartialConfirmed))
	t.add(StatePartialConfirmed, EventTimeout, fixed(StateTimeout))
	t.add(StatePartialConfirmed, EventCancel, fixed(StateCancelled))

	retryGuard := func(m *Message, _ bool) (State, bool) {
		if m.CanRetry() {
			m.IncrementRetry()
			return StateRetryPreparing, true
		}
		return StateDeadLetter, true
	}
	t.add(StateFailed, EventPrepareRetry, retryGuard)
	t.add(StateFailed, EventMaxRetriesExceeded, fixed(StateDeadLetter))
	t.add(StateFailed, EventCancel, fixed(StateCancelled))

	t.add(StateRetryPreparing, EventRetry, fixed(StateRetrying))
	t.add(StateRetryPreparing, EventDelayRetry, fixed(StateRetryDelayed))
	t.add(StateRetryPreparing, EventMaxRetriesExceeded, fixed(StateDeadLetter))
	t.add(StateRetryPreparing, EventCancel, fixed(StateCancelled))

	t.add(StateRetrying, EventSent, fixed(StateSent))
	t.add(StateRetrying, EventFail, fixed(StateFailed))
	t.add(StateRetrying, EventTimeout, fixed(StateTimeout))
	t.add(StateRetrying, EventCancel, fixed(StateCancelled))

	t.add(StateRetryDelayed, EventRetryResume, fixed(StateRetrying))
	t.add(StateRetryDelayed, EventMaxRetriesExceeded, fixed(StateDeadLetter))
	t.add(StateRetryDelayed, EventCancel, fixed(StateCancelled))

	// TIMEOUT re-enters the retry sub-loop exactly like FAILED.
	t.add(StateTimeout, EventPrepareRetry, retryGuard)
	t.add(StateTimeout, EventMaxRetriesExceeded, fixed(StateDeadLetter))
	t.add(StateTimeout, EventCancel, fixed(StateCancelled))

	// Terminal states: only ARCHIVE (and RESET from DEAD_LETTER).
	for _, s := range []State{StateConfirmed, StateDuplicate, StateExpired, StateCancelled} {
		t.add(s, EventArchive, fixed(StateArchiving))
	}
	t.add(StateDeadLetter, EventArchive, fixed(StateArchiving))
	t.add(StateDeadLetter, EventReset, fixed(StateInit))

	t.add(StateArchiving, EventArchiveComplete, fixed(StateArchived))

	return t
}

func (t *transitionTable) add(s State, e Event, r resolver) {
	if t.edges[s] == nil {
		t.edges[s] = make(map[Event]resolver)
	}
	t.edges[s][e] = r
}

// allowed reports whether event e is legal in state s.
func (t *transitionTable) allowed(s State, e Event) bool {
	_, ok := t.edges[s][e]
	return ok
}

// next computes the successor state for (s, e). ok is false when the edge
// does not exist in the table at all, or when the edge's resolver returns
// ok=false. No resolver in this table does: retryGuard chooses DEAD_LETTER
// instead of RETRY_PREPARING and still returns ok=true, so in practice
// ok=false means the edge is absent.
func (t *transitionTable) next(s State, e Event, m *Message, orderingEnabled bool) (State, bool) {
	r, ok := t.edges[s][e]
	if !ok {
		return "", false
	}
	return r(m, orderingEnabled)
}
