package core

// TransitionResult describes the outcome of one fire call.
type TransitionResult struct {
	Success      bool
	FromState    State
	ToState      State
	Event        Event
	ErrorMessage string
}

func successResult(from, to State, e Event) TransitionResult {
	return TransitionResult{Success: true, FromState: from, ToState: to, Event: e}
}

func invalidResult(from State, e Event) TransitionResult {
	return TransitionResult{
		Success:      false,
		FromState:    from,
		ToState:      from,
		Event:        e,
		ErrorMessage: "no transition defined for event " + string(e) + " in state " + string(from),
	}
}

func errorResult(from State, e Event, err error) TransitionResult {
	return TransitionResult{
		Success:      false,
		FromState:    from,
		ToState:      from,
		Event:        e,
		ErrorMessage: err.Error(),
	}
}

// Listener observes every transition a StateMachine makes. Implementations
// must not block or panic; a panicking listener is recovered and logged,
// never allowed to corrupt the machine's own state (listener
// isolation guarantee).
type Listener interface {
	OnTransition(m *Message, result TransitionResult)
}

// ListenerFunc adapts a plain func to a Listener.
type ListenerFunc func(m *Message, result TransitionResult)

func (f ListenerFunc) OnTransition(m *Message, result TransitionResult) { f(m, result) }

// Outcome classifies a Message's terminal state for reporting purposes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeFailed
	OutcomeError
)

// ProcessingResult is the external-facing summary of a Message's run
// through the pipeline, returned by Processor.Submit once it settles.
type ProcessingResult struct {
	MessageID string
	State     State
	Outcome   Outcome
	Message   string
}

// OutcomeFor maps a terminal State to the Outcome a caller should see.
func OutcomeFor(s State) Outcome {
	switch s {
	case StateConfirmed, StatePartialConfirmed, StateArchived:
		return OutcomeSuccess
	case StateDuplicate:
		return OutcomeDuplicate
	case StateDeadLetter, StateExpired, StateCancelled:
		return OutcomeFailed
	default:
		return OutcomeError
	}
}
