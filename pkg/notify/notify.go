// Package notify publishes reservation-store mutations to observers.
// The dashboard subscribes in-process; an optional Kafka sink forwards
// the same events to off-process consumers. Delivery is at-least-once:
// duplicate events must be tolerated by the viewer, not prevented here.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/harborview/voicedesk/internal/log"
)

// Event is one reservation change as seen by the dashboard.
type Event struct {
	ReservationID int       `json:"reservation_id"`
	NewStatus     string    `json:"new_status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink forwards events to an external system (e.g. Kafka).
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// subscriberBuffer bounds each subscriber's queue. A subscriber that
// falls this far behind misses events rather than blocking publishers.
const subscriberBuffer = 32

// Notifier fans reservation change events out to subscribers and sinks.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	sinks  []Sink
	closed bool
}

// New creates a notifier with the given sinks.
func New(sinks ...Sink) *Notifier {
	return &Notifier{
		subs:  make(map[int]chan Event),
		sinks: sinks,
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called when the observer goes away.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, subscriberBuffer)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber and sink. Publishing
// never blocks on a slow subscriber; the event is dropped for that
// subscriber and logged.
func (n *Notifier) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	for id, ch := range n.subs {
		select {
		case ch <- e:
		default:
			log.Warn("change event dropped for slow subscriber",
				"subscriber", id, "reservation", e.ReservationID)
		}
	}
	sinks := n.sinks
	n.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, e); err != nil {
			log.Error("change event sink publish failed",
				"reservation", e.ReservationID, "error", err)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close tears down subscribers and sinks.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	sinks := n.sinks
	n.sinks = nil
	n.mu.Unlock()

	var err error
	for _, s := range sinks {
		if e := s.Close(); e != nil {
			err = e
		}
	}
	return err
}
