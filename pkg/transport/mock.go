package transport

import (
	"sync"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/session"
)

// Mock is an in-memory Connection for tests. The test pushes caller
// frames with PushFrame and inspects agent output with Sent.
type Mock struct {
	kind session.Kind

	inbound *audio.Queue
	digits  chan byte
	seq     *audio.Sequencer

	mu      sync.Mutex
	sent    []audio.Frame
	flushes int
	closed  bool
	err     error

	done chan struct{}
}

// NewMock creates a mock connection of the given kind.
func NewMock(kind session.Kind) *Mock {
	return &Mock{
		kind:    kind,
		inbound: audio.NewQueue(256),
		digits:  make(chan byte, 16),
		seq:     audio.NewSequencer(audio.SourceCaller),
		done:    make(chan struct{}),
	}
}

// Frames implements Connection.
func (m *Mock) Frames() <-chan audio.Frame { return m.inbound.Frames() }

// Digits implements Connection.
func (m *Mock) Digits() <-chan byte { return m.digits }

// Closed implements Connection.
func (m *Mock) Closed() <-chan struct{} { return m.done }

// Err implements Connection.
func (m *Mock) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Kind implements Connection.
func (m *Mock) Kind() session.Kind { return m.kind }

// Send implements Connection, recording the frame.
func (m *Mock) Send(f audio.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sent = append(m.sent, f)
	return nil
}

// Flush implements Flusher, counting invocations.
func (m *Mock) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Close implements Connection.
func (m *Mock) Close() error {
	m.CloseWithError(nil)
	return nil
}

// CloseWithError ends the connection with a terminal error.
func (m *Mock) CloseWithError(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.err = err
	m.mu.Unlock()

	m.inbound.Close()
	close(m.digits)
	close(m.done)
}

// PushFrame delivers one caller frame, stamping the sequence number.
func (m *Mock) PushFrame(pcm []byte) {
	_, _ = m.inbound.Push(m.seq.Stamp(pcm))
}

// PushSilence delivers n frames of silence.
func (m *Mock) PushSilence(n int) {
	for i := 0; i < n; i++ {
		m.PushFrame(make([]byte, audio.BytesPerFrame))
	}
}

// PushDigit delivers one DTMF digit.
func (m *Mock) PushDigit(d byte) {
	m.digits <- d
}

// Sent returns the agent frames sent so far.
func (m *Mock) Sent() []audio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audio.Frame, len(m.sent))
	copy(out, m.sent)
	return out
}

// FlushCount returns how many times Flush was called.
func (m *Mock) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Ensure interfaces are satisfied
var (
	_ Connection = (*Mock)(nil)
	_ Flusher    = (*Mock)(nil)
)
