package core

import (
	"strconv"
	"sync"
)

// LatePolicy decides what the OrderingCoordinator does with a message whose
// sequence number is behind the partition's expected sequence.
type LatePolicy int

const (
	// LateAsReject treats a late sequence as a reorder/duplicate fault:
	// it is never parked, and the caller is told the message is not ready
	// so it can route it to a failure path.
	LateAsReject LatePolicy = iota
	// LateAsPark enqueues the late message in the partition's waiting area
	// instead of dropping it. IsReady still reports it as not ready, and
	// since its sequence is already behind the expected one, Complete never
	// releases it.
	LateAsPark
)

// OrderingConfig configures the OrderingCoordinator.
type OrderingConfig struct {
	Enabled            bool
	MaxWait            int64 // milliseconds, informational: scheduler arms ORDERING_WAIT timeout from TimeoutConfig
	MaxPendingMessages int
	LatePolicy         LatePolicy
}

// DefaultOrderingConfig returns defaults.
func DefaultOrderingConfig() OrderingConfig {
	return OrderingConfig{
		Enabled:            false,
		MaxWait:            5000,
		MaxPendingMessages: 1000,
		LatePolicy:         LateAsReject,
	}
}

// OrderReadiness is the result of an isReady check.
type OrderReadiness int

const (
	Ready OrderReadiness = iota
	Parked
)

type partition struct {
	mu           sync.Mutex
	nextExpected int64
	waiting      []*Message // ordered by arrival, bounded
}

// OrderingCoordinator releases per-partition messages strictly by sequence
// number.
type OrderingCoordinator struct {
	cfg    OrderingConfig
	logger Logger

	mu         sync.Mutex
	partitions map[string]*partition
}

// NewOrderingCoordinator creates an OrderingCoordinator.
func NewOrderingCoordinator(cfg OrderingConfig, logger Logger) *OrderingCoordinator {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &OrderingCoordinator{
		cfg:        cfg,
		logger:     logger,
		partitions: make(map[string]*partition),
	}
}

func (o *OrderingCoordinator) partitionFor(key string) *partition {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.partitions[key]
	if !ok {
		p = &partition{nextExpected: 1}
		o.partitions[key] = p
	}
	return p
}

func sequenceOf(m *Message) int64 {
	if raw, ok := m.Tags[TagSequence]; ok {
		if seq, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return seq
		}
	}
	return m.CreatedAt.UnixNano()
}

// IsReady reports whether m may proceed now. If not, and LatePolicy permits
// parking, m is enqueued in its partition's waiting area.
func (o *OrderingCoordinator) IsReady(m *Message) OrderReadiness {
	key := m.PartitionKey()
	seq := sequenceOf(m)
	p := o.partitionFor(key)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case seq == p.nextExpected:
		return Ready
	case seq > p.nextExpected:
		o.park(p, key, m)
		return Parked
	default:
		o.logger.Warnf("ordering: partition %q received late/reordered sequence %d, expected %d (message %s)",
			key, seq, p.nextExpected, m.ID)
		if o.cfg.LatePolicy == LateAsPark {
			o.park(p, key, m)
		}
		return Parked
	}
}

// park appends m to the partition's waiting queue, evicting the oldest
// entry on overflow. Caller holds p.mu.
func (o *OrderingCoordinator) park(p *partition, key string, m *Message) {
	if len(p.waiting) >= o.cfg.MaxPendingMessages {
		o.logger.Warnf("ordering: partition %q waiting queue full, evicting oldest parked message", key)
		p.waiting = p.waiting[1:]
	}
	p.waiting = append(p.waiting, m)
}

// Complete reports successful handling of m, advances the partition's
// expected sequence by one, and returns any parked messages that now match
// the new expected sequence. The caller resumes each released message and,
// once it too finishes, calls Complete on it in turn; that is what lets a
// contiguous run of parked messages drain in sequence order.
func (o *OrderingCoordinator) Complete(m *Message) []*Message {
	key := m.PartitionKey()
	p := o.partitionFor(key)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextExpected++

	// Normally at most one waiting message can match the new expected
	// sequence; the loop only guards against a malformed producer parking
	// two messages under the same sequence number.
	var released []*Message
	remaining := p.waiting[:0]
	for _, w := range p.waiting {
		if sequenceOf(w) == p.nextExpected {
			released = append(released, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	p.waiting = remaining

	return released
}

// CleanupPartition explicitly removes a partition's state.
func (o *OrderingCoordinator) CleanupPartition(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.partitions, key)
}
