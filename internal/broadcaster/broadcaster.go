// Package broadcaster implements the in-process publish/subscribe fabric
// that fans out run/task lifecycle events to subscribers, per spec.md
// §4.6. It is adapted from the teacher's Glass Box event bus
// (internal/transparency/event_bus.go): a mutex-guarded subscriber list
// with per-subscriber delivery, generalized from a single global fan-out
// channel to named channels with a bounded, drop-oldest queue per
// subscriber.
package broadcaster

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// AllChannel is the channel whose subscribers receive every event,
// regardless of the channel it was published on; an event published on it
// reaches every subscriber.
const AllChannel = "all"

// Subscription is an opaque handle returned by Subscribe. It owns a
// bounded FIFO queue; when the queue is full, the oldest event is
// dropped to make room for the newest (spec.md §4.6 backpressure policy).
type Subscription struct {
	id       string
	channels map[string]bool

	mu     sync.Mutex
	queue  []types.Event
	cap    int
	closed bool
	notify chan struct{}

	dropped atomic.Int64
}

func newSubscription(id string, channels []string, capacity int) *Subscription {
	set := make(map[string]bool, len(channels)+1)
	for _, c := range channels {
		set[c] = true
	}
	return &Subscription{
		id:       id,
		channels: set,
		cap:      capacity,
		notify:   make(chan struct{}, 1),
	}
}

// enqueue appends event to the subscriber's queue, dropping the oldest
// queued event first if at capacity. It is a no-op after Close.
func (s *Subscription) enqueue(event types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= s.cap {
		s.queue = s.queue[1:]
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, event)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the subscription is closed, or
// ctx is cancelled. The second return is false once the subscription has
// been unsubscribed and its queue drained.
func (s *Subscription) Next(ctx context.Context) (types.Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return types.Event{}, false
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return types.Event{}, false
		}
	}
}

// DroppedCount returns the number of events dropped from this
// subscription's queue due to backpressure.
func (s *Subscription) DroppedCount() int64 {
	return s.dropped.Load()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Broadcaster is the shared, process-wide pub/sub fabric. Publish is safe
// for concurrent callers; Subscribe/Unsubscribe are safe relative to
// Publish (no events are delivered to a subscriber after Unsubscribe
// returns), per spec.md §4.6's concurrency contract.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	nextID        atomic.Uint64
	capacity      int
}

// New creates a Broadcaster whose subscriptions use the given per-queue
// capacity (spec.md default 100, from config.BroadcasterConfig).
func New(capacity int) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster{
		subscriptions: make(map[string]*Subscription),
		capacity:      capacity,
	}
}

// Subscribe returns a handle receiving events published on any of
// channels, plus every event published on the "all" channel. Subscribing
// to "all" itself receives every event, whatever channel it was published on.
func (b *Broadcaster) Subscribe(channels ...string) *Subscription {
	id := strconv.FormatUint(b.nextID.Add(1), 16)
	sub := newSubscription(id, channels, b.capacity)

	b.mu.Lock()
	b.subscriptions[id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from delivery and drains its queue. Idempotent.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subscriptions, sub.id)
	b.mu.Unlock()
	sub.close()
}

// Publish delivers event to every subscriber of channel and to every
// subscriber of the "all" channel; an event published on "all" reaches
// every subscriber. It never blocks: a full subscriber queue
// drops its oldest entry rather than stalling the publisher.
func (b *Broadcaster) Publish(channel string, event types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		if channel == AllChannel || sub.channels[channel] || sub.channels[AllChannel] {
			sub.enqueue(event)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close unsubscribes every active subscriber, draining their queues.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// TaskChannel returns the channel name for a task's events.
func TaskChannel(taskID string) string { return "task:" + taskID }

// RunChannel returns the channel name for a run's events.
func RunChannel(runID string) string { return "run:" + runID }

// NewEvent stamps a fresh event envelope with a generated event ID, the
// current time, and the schema version, per spec.md §6's event envelope.
func NewEvent(eventType types.EventType, workspaceID, taskID, runID string, data interface{}) types.Event {
	return types.Event{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		TaskID:      taskID,
		RunID:       runID,
		Data:        data,
		Version:     types.EventEnvelopeVersion,
	}
}
