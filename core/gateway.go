package core

import "context"

// Gateway is the transport collaborator the Scheduler hands a Message to
// when it leaves SENDING. The core never implements real delivery itself
// (Non-goals: transport); it only calls this interface.
//
// A Scheduler with no Gateway configured falls back to a self-firing
// simulation (see simulateGateway), clearly logged at WARN so it is never
// mistaken for real delivery in production use.
type Gateway interface {
	Deliver(ctx context.Context, m *Message) error
}

// simulateGateway is the reference-only Gateway used when a caller hasn't
// supplied one. It always succeeds immediately, standing in for a real
// transport so the pipeline can still be exercised end to end.
type simulateGateway struct{}

func (simulateGateway) Deliver(context.Context, *Message) error { return nil }
