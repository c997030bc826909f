// Package msgflow is an in-process message-processing engine: a per-message
// state machine that moves a Message through admission (deduplication, rate
// limiting, partition ordering), delivery, and retry/dead-letter handling,
// driven by a shared background scheduler.
//
// # Quick Start
//
//	proc, err := msgflow.NewProcessor(
//	    msgflow.WithLogger(logger),
//	    msgflow.WithGateway(myGateway),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Shutdown(context.Background())
//
//	result, err := proc.Submit(ctx, core.NewMessage("", "orders.created", payload))
//
// # Architecture
//
// The core package (github.com/coregx/msgflow/core) implements the hard
// engineering: the state machine and transition table, the deduplicator,
// the token-bucket rate limiter, the per-partition ordering coordinator,
// and the scheduler that ties timeouts, retry backoff, rate-limit recovery
// and auto-advance together. None of it depends on transport or storage.
//
// The root package hosts the Processor facade external callers use
// (Submit/SubmitBatch/Retry/Cancel/Stats), plus the two collaborator
// interfaces the engine calls out to but never implements itself:
//
//   - Gateway: delivers a Message to its destination (SENDING -> SENT).
//   - AuditRepository (see the audit subpackage): durably records
//     DEAD_LETTER and ARCHIVED transitions for post-mortem review, backed
//     by the Relica query builder over MySQL, PostgreSQL, or SQLite.
//
// # Retry Strategy
//
// Failed deliveries retry with exponential backoff (default base 500ms,
// multiplier 2.0, capped at 30s) up to the Message's own MaxRetries bound
// (3 for a Message built with core.NewMessage), then move to the dead letter
// state for manual inspection. RetryConfig.MaxRetries is validated but is
// not applied to messages.
package msgflow
