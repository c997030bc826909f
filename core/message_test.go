package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage_DefaultsAndUUID(t *testing.T) {
	msg := NewMessage("", "orders", "payload")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, "payload", msg.Body)
	assert.Equal(t, []byte("payload"), msg.Payload)
	assert.Equal(t, StateInit, msg.State())
	assert.Equal(t, 3, msg.MaxRetries)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
}

func TestNewMessage_ExplicitID(t *testing.T) {
	msg := NewMessage("fixed-id", "orders", "payload")
	assert.Equal(t, "fixed-id", msg.ID)
}

func TestMessage_IsExpired(t *testing.T) {
	msg := NewMessage("", "t", "b")
	assert.False(t, msg.IsExpired())

	msg.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, msg.IsExpired())
}

func TestMessage_CanRetry(t *testing.T) {
	msg := NewMessage("", "t", "b")
	msg.MaxRetries = 2

	assert.True(t, msg.CanRetry())
	msg.IncrementRetry()
	assert.True(t, msg.CanRetry())
	msg.IncrementRetry()
	assert.False(t, msg.CanRetry())
}

func TestMessage_PartitionKey(t *testing.T) {
	msg := NewMessage("", "orders", "b")
	assert.Equal(t, "orders", msg.PartitionKey())

	msg.Tags[TagPartitionKey] = "customer-42"
	assert.Equal(t, "customer-42", msg.PartitionKey())

	empty := NewMessage("", "", "b")
	assert.Equal(t, "default", empty.PartitionKey())
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateConfirmed.IsTerminal())
	assert.True(t, StateDeadLetter.IsTerminal())
	assert.False(t, StateSending.IsTerminal())
	assert.False(t, StateInit.IsTerminal())
}
