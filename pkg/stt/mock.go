package stt

import (
	"context"
	"sync"
)

// Mock is a mock STT provider for testing.
type Mock struct {
	mu      sync.Mutex
	streams []*MockStream

	// OpenStreamFunc overrides stream creation. Default returns a
	// MockStream that records audio and emits scripted utterances.
	OpenStreamFunc func(ctx context.Context) (Stream, error)

	// HealthFunc handles health checks. Default returns nil.
	HealthFunc func(ctx context.Context) error
}

// NewMock creates a mock STT provider.
func NewMock() *Mock {
	return &Mock{}
}

// OpenStream implements Provider.
func (m *Mock) OpenStream(ctx context.Context) (Stream, error) {
	if m.OpenStreamFunc != nil {
		return m.OpenStreamFunc(ctx)
	}
	s := NewMockStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close implements Provider.
func (m *Mock) Close() error { return nil }

// Streams returns the streams opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream is a scriptable transcription stream. Tests push
// utterances with Emit and inspect received audio with Received.
type MockStream struct {
	mu       sync.Mutex
	closed   bool
	received [][]byte

	results chan Utterance
	errs    chan error
}

// NewMockStream creates a mock stream.
func NewMockStream() *MockStream {
	return &MockStream{
		results: make(chan Utterance, 64),
		errs:    make(chan error, 4),
	}
}

// SendAudio implements Stream.
func (s *MockStream) SendAudio(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.received = append(s.received, buf)
	return nil
}

// Results implements Stream.
func (s *MockStream) Results() <-chan Utterance { return s.results }

// Errors implements Stream.
func (s *MockStream) Errors() <-chan error { return s.errs }

// Close implements Stream.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	return nil
}

// Emit pushes an utterance to the results channel.
func (s *MockStream) Emit(u Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.results <- u
}

// EmitFinal pushes a speech-final utterance with the given text.
func (s *MockStream) EmitFinal(text string) {
	s.Emit(Utterance{Text: text, Confidence: 1.0, SegmentFinal: true, SpeechFinal: true})
}

// EmitError pushes an error to the error channel.
func (s *MockStream) EmitError(err error) {
	s.errs <- err
}

// Received returns the audio chunks sent so far.
func (s *MockStream) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// Ensure interfaces are satisfied
var (
	_ Provider = (*Mock)(nil)
	_ Stream   = (*MockStream)(nil)
)
