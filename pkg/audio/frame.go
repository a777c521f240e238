// Package audio provides the PCM frame primitives shared by transports,
// speech transducers, and the turn orchestrator.
//
// All components exchange audio as fixed-size frames of 16 kHz mono PCM16.
// Transports are responsible for resampling and re-chunking their native
// media into this format; nothing downstream ever sees raw carrier framing.
package audio

import "time"

// Canonical frame format. Every Frame crossing a package boundary uses this.
const (
	// SampleRate is the canonical sample rate in Hz (mono PCM16).
	SampleRate = 16000

	// FrameDuration is the length of one frame.
	FrameDuration = 20 * time.Millisecond

	// SamplesPerFrame is the number of int16 samples in one frame.
	SamplesPerFrame = SampleRate / 50 // 20ms

	// BytesPerFrame is the byte length of one frame's PCM payload.
	BytesPerFrame = SamplesPerFrame * 2
)

// Source identifies who produced a frame.
type Source int

const (
	// SourceCaller is audio arriving from the caller (inbound).
	SourceCaller Source = iota

	// SourceAgent is synthesized agent speech (outbound).
	SourceAgent
)

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceCaller:
		return "caller"
	case SourceAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// Frame is one fixed-size chunk of linear PCM audio.
// Seq is strictly increasing within one direction of one connection;
// a gap means dropped media and must be logged, never reordered.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the producer.
	Seq uint64

	// Source tags the producer (caller or agent).
	Source Source

	// PCM is little-endian 16-bit mono audio at SampleRate.
	// Length is normally BytesPerFrame; the final frame of an
	// utterance may be shorter.
	PCM []byte
}

// Sequencer stamps frames with monotonic sequence numbers for one direction.
// Not safe for concurrent use; each direction owns its own Sequencer.
type Sequencer struct {
	src  Source
	next uint64
}

// NewSequencer creates a sequencer for the given source.
func NewSequencer(src Source) *Sequencer {
	return &Sequencer{src: src}
}

// Stamp wraps pcm in a Frame carrying the next sequence number.
func (s *Sequencer) Stamp(pcm []byte) Frame {
	s.next++
	return Frame{Seq: s.next, Source: s.src, PCM: pcm}
}

// GapDetector tracks sequence continuity on the consumer side.
type GapDetector struct {
	last uint64
	seen bool
}

// Observe records a frame's sequence number and returns the number of
// frames missing before it (0 when the stream is contiguous).
// Producers number from 1, so a first observation above 1 means frames
// were lost before any arrived.
func (g *GapDetector) Observe(seq uint64) uint64 {
	defer func() { g.last, g.seen = seq, true }()
	if !g.seen {
		if seq > 1 {
			return seq - 1
		}
		return 0
	}
	if seq <= g.last {
		// Out of order or duplicate; treat as a gap of zero, the
		// caller decides whether to drop it.
		return 0
	}
	return seq - g.last - 1
}
