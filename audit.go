package msgflow

import (
	"context"
	"time"

	"github.com/coregx/msgflow/core"
)

// AuditRecord is an immutable snapshot of one transition, written to an
// AuditRepository for terminal transitions worth a durable trail
// (DEAD_LETTER, ARCHIVED).
type AuditRecord struct {
	MessageID  string
	Topic      string
	FromState  core.State
	ToState    core.State
	Event      core.Event
	Outcome    core.Outcome
	RetryCount int
	RecordedAt time.Time
}

// AuditRepository is the optional persistence collaborator: a write-behind
// sink a caller attaches with WithAuditRepository to durably record
// terminal transitions for post-mortem or compliance review. It is never
// required for the engine to function (persistence is out of scope for the
// core); a failing RecordTransition is logged and swallowed, never allowed
// to fail or block a transition.
type AuditRepository interface {
	RecordTransition(ctx context.Context, rec AuditRecord) error
}
