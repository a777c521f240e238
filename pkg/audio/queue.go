package audio

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned when pushing to a closed queue.
var ErrQueueClosed = errors.New("audio: queue closed")

// Queue is a bounded, single-producer single-consumer frame handoff.
// Each frame has exactly one producer and one consumer: the producer
// pushes, the consumer ranges over Frames(). When the queue is full the
// push fails instead of blocking the media path; the caller logs the
// drop and moves on.
type Queue struct {
	ch chan Frame

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan Frame, capacity)}
}

// Push hands a frame to the consumer. Returns ErrQueueClosed after Close,
// and false (nil error) when the frame was dropped because the queue is full.
func (q *Queue) Push(f Frame) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrQueueClosed
	}
	select {
	case q.ch <- f:
		return true, nil
	default:
		return false, nil
	}
}

// Frames returns the consumer side. The channel is closed by Close.
func (q *Queue) Frames() <-chan Frame {
	return q.ch
}

// Close stops the queue. Pending frames remain readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len reports the number of frames currently buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}
