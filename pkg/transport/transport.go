// Package transport normalizes caller media paths into the canonical
// frame format. Each variant (WebRTC for browsers, telephony media
// streams for phone calls) owns its carrier protocol and codec; the
// turn orchestrator only ever sees 16kHz mono PCM16 frames with
// monotonic sequence numbers.
package transport

import (
	"errors"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/session"
)

// Errors returned by connections.
var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrNotConnected is returned when media is not yet flowing.
	ErrNotConnected = errors.New("transport: not connected")
)

// Connection is one live media path to a caller.
type Connection interface {
	// Frames returns inbound caller audio in canonical frames.
	// The channel closes when the connection ends.
	Frames() <-chan audio.Frame

	// Send writes one frame of agent speech to the caller.
	Send(f audio.Frame) error

	// Digits returns the DTMF side channel, or nil when the carrier
	// has no digit signalling (WebRTC).
	Digits() <-chan byte

	// Closed is signalled when the connection ends for any reason.
	Closed() <-chan struct{}

	// Err returns the terminal error, or nil for a clean close.
	Err() error

	// Kind identifies the transport variant.
	Kind() session.Kind

	// Close tears the connection down.
	Close() error
}

// Flusher is implemented by transports that can drop audio already
// queued on the carrier side. Used on barge-in so a caller does not
// keep hearing buffered agent speech after interrupting.
type Flusher interface {
	Flush() error
}

// carrierRate is the G.711 sample rate both variants speak on the wire.
const carrierRate = 8000

// mulawToCanonical decodes 8kHz μ-law carrier audio into canonical-rate
// PCM16 bytes.
func mulawToCanonical(payload []byte) []byte {
	pcm8k := audio.MulawToPCM(payload)
	pcm16k := audio.Resample(pcm8k, carrierRate, audio.SampleRate)
	return audio.SamplesToBytes(pcm16k)
}

// canonicalToMulaw encodes canonical-rate PCM16 bytes into 8kHz μ-law
// for the carrier.
func canonicalToMulaw(pcm []byte) []byte {
	samples := audio.BytesToSamples(pcm)
	pcm8k := audio.Resample(samples, audio.SampleRate, carrierRate)
	return audio.PCMToMulaw(pcm8k)
}
