// Package core implements the message-processing engine: the per-message
// state machine and its four collaborators (deduplication, rate limiting,
// ordering, scheduling).
package core

import (
	"time"

	"github.com/google/uuid"
)

// State is one of the discrete positions a Message occupies in its
// processing lifecycle.
type State string

const (
	StateInit State = "INIT"

	StateDedupChecking State = "DEDUP_CHECKING"
	StateDuplicate     State = "DUPLICATE"
	StateRateLimiting  State = "RATE_LIMITING"
	StateRateLimited   State = "RATE_LIMITED"
	StateQueued        State = "QUEUED"
	StateOrderingWait  State = "ORDERING_WAIT"
	StatePreprocessing State = "PREPROCESSING"

	StateSending          State = "SENDING"
	StateSendPaused       State = "SEND_PAUSED"
	StateSent             State = "SENT"
	StatePartialConfirmed State = "PARTIAL_CONFIRMED"
	StateConfirmed        State = "CONFIRMED"

	StateFailed         State = "FAILED"
	StateRetryPreparing State = "RETRY_PREPARING"
	StateRetrying       State = "RETRYING"
	StateRetryDelayed   State = "RETRY_DELAYED"
	StateTimeout        State = "TIMEOUT"
	StateDeadLetter     State = "DEAD_LETTER"

	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
	StateArchiving State = "ARCHIVING"
	StateArchived  State = "ARCHIVED"
)

// terminalStates are states from which no progression except ARCHIVE (and
// RESET from DEAD_LETTER) is defined.
var terminalStates = map[State]bool{
	StateConfirmed:  true,
	StateDuplicate:  true,
	StateDeadLetter: true,
	StateExpired:    true,
	StateCancelled:  true,
	StateArchived:   true,
}

// IsTerminal reports whether a message in this state has nothing left to do
// except archive (or, for DEAD_LETTER, reset).
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// Event is a discrete stimulus that may advance a Message's State.
type Event string

const (
	EventStartProcessing    Event = "START_PROCESSING"
	EventDedupPass          Event = "DEDUP_PASS"
	EventDedupDuplicate     Event = "DEDUP_DUPLICATE"
	EventRateLimitPass      Event = "RATE_LIMIT_PASS"
	EventRateLimitExceeded  Event = "RATE_LIMIT_EXCEEDED"
	EventRateLimitRecovered Event = "RATE_LIMIT_RECOVERED"
	EventCheckOrder         Event = "CHECK_ORDER"
	EventOrderReady         Event = "ORDER_READY"
	EventPreprocess         Event = "PREPROCESS"
	EventPreprocessComplete Event = "PREPROCESS_COMPLETE"
	EventSent               Event = "SENT"
	EventConfirm            Event = "CONFIRM"
	EventPartialConfirm     Event = "PARTIAL_CONFIRM"

	EventFail               Event = "FAIL"
	EventTimeout            Event = "TIMEOUT"
	EventCancel             Event = "CANCEL"
	EventExpire             Event = "EXPIRE"
	EventPauseSend          Event = "PAUSE_SEND"
	EventResumeSend         Event = "RESUME_SEND"
	EventMaxRetriesExceeded Event = "MAX_RETRIES_EXCEEDED"

	EventPrepareRetry Event = "PREPARE_RETRY"
	EventRetry        Event = "RETRY"
	EventDelayRetry   Event = "DELAY_RETRY"
	EventRetryResume  Event = "RETRY_RESUME"

	EventArchive         Event = "ARCHIVE"
	EventArchiveComplete Event = "ARCHIVE_COMPLETE"
	EventReset           Event = "RESET"

	// internal admission-check events: pre-transition work substitutes the
	// effective event before nextState is computed.
	eventCheckDedup     Event = "CHECK_DEDUP"
	eventCheckRateLimit Event = "CHECK_RATE_LIMIT"
)

// Reserved tag keys.
const (
	TagPartitionKey = "partitionKey"
	TagSequence     = "sequence"
)

// Message is a uniquely identified record driven through the pipeline by a
// StateMachine. Identifier is immutable after creation; State is the single
// source of truth for the message's position in the pipeline.
type Message struct {
	ID         string
	Topic      string
	Payload    []byte
	Body       string
	Priority   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RetryCount int
	MaxRetries int
	Tags       map[string]string

	state State
}

// NewMessage creates a Message in StateInit. An empty id is replaced with a
// random UUID.
func NewMessage(id, topic, body string) *Message {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Message{
		ID:         id,
		Topic:      topic,
		Body:       body,
		Payload:    []byte(body),
		Priority:   5,
		CreatedAt:  now,
		ExpiresAt:  now.Add(5 * time.Minute),
		MaxRetries: 3,
		Tags:       make(map[string]string),
		state:      StateInit,
	}
}

// State returns the message's current state.
func (m *Message) State() State {
	return m.state
}

// setState is called only by StateMachine, under its own lock.
func (m *Message) setState(s State) {
	m.state = s
}

// IsExpired reports whether now is after the message's expiry timestamp.
func (m *Message) IsExpired() bool {
	return time.Now().After(m.ExpiresAt)
}

// CanRetry reports whether the message has not yet exhausted its retry budget.
func (m *Message) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// IncrementRetry increments the retry count. Called only by the
// PREPARE_RETRY guard when a retry is admitted.
func (m *Message) IncrementRetry() {
	m.RetryCount++
}

// PartitionKey returns tag["partitionKey"] if present, else the topic, else
// "default".
func (m *Message) PartitionKey() string {
	if v, ok := m.Tags[TagPartitionKey]; ok && v != "" {
		return v
	}
	if m.Topic != "" {
		return m.Topic
	}
	return "default"
}
