package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("subscriber receives events", func(t *testing.T) {
		n := New()
		defer n.Close()

		ch, cancel := n.Subscribe()
		defer cancel()

		n.Publish(ctx, Event{ReservationID: 555, NewStatus: "cancelled"})

		select {
		case e := <-ch:
			if e.ReservationID != 555 || e.NewStatus != "cancelled" {
				t.Errorf("unexpected event: %+v", e)
			}
			if e.Timestamp.IsZero() {
				t.Error("expected timestamp to be stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("all subscribers see each event", func(t *testing.T) {
		n := New()
		defer n.Close()

		ch1, cancel1 := n.Subscribe()
		ch2, cancel2 := n.Subscribe()
		defer cancel1()
		defer cancel2()

		n.Publish(ctx, Event{ReservationID: 1, NewStatus: "confirmed"})

		for i, ch := range []<-chan Event{ch1, ch2} {
			select {
			case e := <-ch:
				if e.ReservationID != 1 {
					t.Errorf("subscriber %d: unexpected event %+v", i, e)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})

	t.Run("cancel stops delivery", func(t *testing.T) {
		n := New()
		defer n.Close()

		ch, cancel := n.Subscribe()
		cancel()

		// Publishing after cancel must not panic and channel is closed.
		n.Publish(ctx, Event{ReservationID: 2, NewStatus: "modified"})
		if _, ok := <-ch; ok {
			t.Error("expected closed channel after cancel")
		}
	})

	t.Run("slow subscriber does not block publish", func(t *testing.T) {
		n := New()
		defer n.Close()

		_, cancel := n.Subscribe() // never drained
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < subscriberBuffer*2; i++ {
				n.Publish(ctx, Event{ReservationID: i, NewStatus: "confirmed"})
			}
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("publish blocked on slow subscriber")
		}
	})

	t.Run("sink receives events", func(t *testing.T) {
		sink := &captureSink{}
		n := New(sink)
		defer n.Close()

		n.Publish(ctx, Event{ReservationID: 7, NewStatus: "confirmed"})

		if got := sink.count(); got != 1 {
			t.Errorf("expected 1 sink publish, got %d", got)
		}
	})
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
