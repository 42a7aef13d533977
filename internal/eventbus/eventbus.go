// Package eventbus implements an in-process, poll-based event bus with
// per-subscriber filtering: every subscriber owns a bounded queue that
// Emit fills and DrainPendingEvents drains, with drop-oldest overflow so a
// slow consumer never blocks the pipeline.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the domain event kinds.
type EventType string

const (
	EventAgentCreated      EventType = "AGENT_CREATED"
	EventAgentStatusChanged EventType = "AGENT_STATUS_CHANGED"
	EventTaskAssigned      EventType = "TASK_ASSIGNED"
	EventTaskStatusChanged EventType = "TASK_STATUS_CHANGED"
	EventMessageSent       EventType = "MESSAGE_SENT"
	EventReportSubmitted   EventType = "REPORT_SUBMITTED"
	// EventOverflow is a diagnostic event prefixed to a drain when events
	// were dropped since the previous drain; it carries the drop count.
	EventOverflow EventType = "SUBSCRIBER_QUEUE_OVERFLOW"
)

// Event is one entry on the bus.
type Event struct {
	Type        EventType
	AgentID     string
	WorkspaceID string
	Data        map[string]any
	Timestamp   time.Time
}

// Filter selects which events a subscriber receives.
type Filter struct {
	AgentID     string      // the subscriber's own agent; used for matching only via ExcludeSelf
	AgentName   string      // informational; not used for matching
	EventTypes  []EventType // if empty, all types match
	ExcludeSelf bool        // if true, events whose AgentID == Filter.AgentID are skipped
}

func (f Filter) matches(evt Event) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == evt.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ExcludeSelf && f.AgentID != "" && evt.AgentID == f.AgentID {
		return false
	}
	return true
}

const defaultQueueSize = 256

type subscriber struct {
	id     string
	filter Filter
	mu     sync.Mutex
	queue  []Event
	max    int
	// dropped counts events discarded since the last drain; surfaced as a
	// single diagnostic overflow event at the head of the next drain.
	dropped         int
	lastDroppedType EventType
}

// Bus is the in-process, per-subscriber filtered event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	queueSize   int
}

// New creates an empty Bus. queueSize <= 0 uses the default bound.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{subscribers: make(map[string]*subscriber), queueSize: queueSize}
}

// Subscribe registers a filter and returns its subscription id.
func (b *Bus) Subscribe(filter Filter) string {
	id := uuid.New().String()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = &subscriber{id: id, filter: filter, max: b.queueSize}
	return id
}

// Unsubscribe removes a subscription. Returns false if it did not exist.
func (b *Bus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[subscriptionID]; !ok {
		return false
	}
	delete(b.subscribers, subscriptionID)
	return true
}

// Emit delivers evt to every matching subscriber. Delivery never blocks: a
// full queue drops its oldest entry to make room, and the next drain is
// prefixed with a diagnostic overflow event recording the loss.
func (b *Bus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.filter.matches(evt) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(evt)
	}
}

func (s *subscriber) enqueue(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.max {
		s.lastDroppedType = s.queue[0].Type
		s.dropped++
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, evt)
}

// DrainPendingEvents pulls and clears the queue for a subscription, for
// polling consumers.
func (b *Bus) DrainPendingEvents(subscriptionID string) []Event {
	b.mu.RLock()
	sub, ok := b.subscribers[subscriptionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	drained := sub.queue
	sub.queue = nil
	if sub.dropped > 0 {
		diag := Event{
			Type:      EventOverflow,
			Timestamp: time.Now().UTC(),
			Data: map[string]any{
				"droppedCount":    sub.dropped,
				"lastDroppedType": string(sub.lastDroppedType),
			},
		}
		sub.dropped = 0
		drained = append([]Event{diag}, drained...)
	}
	return drained
}

// SubscriberCount reports the number of active subscriptions, mostly useful
// for tests asserting round-trip subscribe/unsubscribe neutrality.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
