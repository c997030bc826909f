package core

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withSequence(topic string, seq int64) *Message {
	m := NewMessage("", topic, "b")
	m.Tags[TagSequence] = strconv.FormatInt(seq, 10)
	return m
}

func TestOrderingCoordinator_FirstSequenceReady(t *testing.T) {
	oc := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	m := withSequence("p", 1)
	assert.Equal(t, Ready, oc.IsReady(m))
}

func TestOrderingCoordinator_ParksFutureSequence(t *testing.T) {
	oc := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	future := withSequence("p", 2)
	assert.Equal(t, Parked, oc.IsReady(future))
}

func TestOrderingCoordinator_CompleteReleasesNextParked(t *testing.T) {
	oc := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	one := withSequence("p", 1)
	two := withSequence("p", 2)

	assert.Equal(t, Ready, oc.IsReady(one))
	assert.Equal(t, Parked, oc.IsReady(two))

	released := oc.Complete(one)
	assert.Equal(t, []*Message{two}, released)
}

func TestOrderingCoordinator_CompleteDrainsContiguousRun(t *testing.T) {
	oc := NewOrderingCoordinator(DefaultOrderingConfig(), nil)

	seqs := []int64{3, 1, 5, 2, 6, 4}
	msgs := make(map[int64]*Message, len(seqs))
	for _, s := range seqs {
		m := withSequence("p", s)
		msgs[s] = m
		oc.IsReady(m)
	}

	// Completing 1 should cascade-release 2, 3, 4, 5, 6 in order as each
	// completes in turn.
	var order []int64
	current := msgs[1]
	for {
		released := oc.Complete(current)
		if len(released) == 0 {
			break
		}
		next := released[0]
		order = append(order, sequenceOf(next))
		current = next
	}

	assert.Equal(t, []int64{2, 3, 4, 5, 6}, order)
}

func TestOrderingCoordinator_LateAsRejectDoesNotPark(t *testing.T) {
	cfg := DefaultOrderingConfig()
	cfg.LatePolicy = LateAsReject
	oc := NewOrderingCoordinator(cfg, nil)

	one := withSequence("p", 1)
	oc.IsReady(one)
	oc.Complete(one) // nextExpected now 2

	late := withSequence("p", 1)
	assert.Equal(t, Parked, oc.IsReady(late))

	// A subsequent Complete(2) should not release the rejected late message.
	two := withSequence("p", 2)
	oc.IsReady(two)
	released := oc.Complete(two)
	assert.Empty(t, released)
}

func TestOrderingCoordinator_ParkOverflowEvictsOldest(t *testing.T) {
	cfg := DefaultOrderingConfig()
	cfg.MaxPendingMessages = 2
	oc := NewOrderingCoordinator(cfg, nil)

	oc.IsReady(withSequence("p", 2))
	oc.IsReady(withSequence("p", 3))
	oc.IsReady(withSequence("p", 4))

	p := oc.partitionFor("p")
	assert.Len(t, p.waiting, 2)
}

func TestOrderingCoordinator_CleanupPartition(t *testing.T) {
	oc := NewOrderingCoordinator(DefaultOrderingConfig(), nil)
	oc.IsReady(withSequence("p", 1))

	oc.CleanupPartition("p")

	oc.mu.Lock()
	_, ok := oc.partitions["p"]
	oc.mu.Unlock()
	assert.False(t, ok)
}
