package msgflow

import (
	"fmt"
	"time"

	"github.com/coregx/msgflow/core"
)

// Option configures a Processor at construction, following the Options
// Pattern used throughout this module.
type Option func(*Processor) error

// WithLogger sets the logger every collaborator (dedup, rate limiter,
// ordering, scheduler, state machines) writes through. Defaults to a
// NoopLogger.
func WithLogger(logger Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithGateway sets the transport collaborator SENDING/RETRYING auto-advance
// delivers through. Without one, the Scheduler simulates delivery and logs
// a warning on every send.
func WithGateway(gateway core.Gateway) Option {
	return func(p *Processor) error {
		if gateway == nil {
			return fmt.Errorf("gateway cannot be nil")
		}
		p.gateway = gateway
		return nil
	}
}

// WithAuditRepository attaches an optional durable sink that records
// DEAD_LETTER and ARCHIVED transitions. A failing repository is logged and
// swallowed; it can never fail or block a transition.
func WithAuditRepository(repo AuditRepository) Option {
	return func(p *Processor) error {
		if repo == nil {
			return fmt.Errorf("audit repository cannot be nil")
		}
		p.audit = repo
		return nil
	}
}

// WithConfig replaces the default core.Config wholesale.
func WithConfig(cfg core.Config) Option {
	return func(p *Processor) error {
		p.coreCfg = cfg
		return nil
	}
}

// WithListener registers a Listener that observes every transition of
// every message the Processor submits, in addition to the Processor's own
// bookkeeping listener.
func WithListener(l core.Listener) Option {
	return func(p *Processor) error {
		if l == nil {
			return fmt.Errorf("listener cannot be nil")
		}
		p.listeners = append(p.listeners, l)
		return nil
	}
}

// WithPollInterval overrides how often Submit polls a message's state while
// waiting for it to settle. Default 100ms.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be > 0, got %v", d)
		}
		p.pollInterval = d
		return nil
	}
}

// WithOverallDeadline overrides how long Submit waits for a message to
// settle before returning an ERROR outcome. Default 30s.
func WithOverallDeadline(d time.Duration) Option {
	return func(p *Processor) error {
		if d <= 0 {
			return fmt.Errorf("overall deadline must be > 0, got %v", d)
		}
		p.overallDeadline = d
		return nil
	}
}
