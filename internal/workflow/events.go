package workflow

import (
	"sync"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

// EventType classifies what happened to a run.
type EventType string

const (
	EventStage     EventType = "stage"
	EventRetry     EventType = "retry"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventFailed    EventType = "failed"
)

// Event is a sequenced progress record consumed by API subscribers.
type Event struct {
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	RunID     string       `json:"run_id"`
	Type      EventType    `json:"type"`
	Stage     models.Stage `json:"stage,omitempty"`
	Attempt   int          `json:"attempt,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// EventBus keeps the most recent events in memory for incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a buffer holding at most maxEvents events.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish assigns the next sequence number and appends the event.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	return event
}

// Since returns events with a sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// SinceRun is Since filtered to one run.
func (b *EventBus) SinceRun(runID string, seq int64) []Event {
	var out []Event
	for _, event := range b.Since(seq) {
		if event.RunID == runID {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest event, or 0.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
