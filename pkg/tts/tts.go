// Package tts turns the concierge's replies into audio.
//
// Providers expose two paths: Synthesize buffers the whole utterance,
// Stream hands chunks back as the API produces them. The turn
// orchestrator always takes the streaming path so playback can start
// before synthesis finishes and barge-in can cut it off mid-sentence.
// The canonical output format is 16 kHz mono PCM16; the playback layer
// slices it into 20 ms frames.
//
// ElevenLabs is the primary backend, OpenAI the fallback, and Chain
// glues them together so a provider outage degrades latency rather
// than silencing the call.
package tts

import (
	"context"
	"time"
)

// Provider is a text-to-speech backend.
type Provider interface {
	// Synthesize returns the complete audio for text. Prefer Stream
	// for anything the caller will hear live.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream returns audio chunks as they are produced.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}

// AudioStream is an in-progress synthesis. Read returns nil with a nil
// error when the stream is complete; callers then Close.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

// AudioResult is a fully buffered synthesis.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated playback length
	CharCount int
	LatencyMs int64 // time to first byte
}

// AudioFormat describes the encoding of synthesized audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int
	BitDepth   int // bits per sample, PCM only
}

// Encoding names an output format. The values are ElevenLabs output
// format strings; the OpenAI client maps them to its own names.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // canonical call format
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"

	EncodingMP3  Encoding = "mp3_44100_128"
	EncodingULaw Encoding = "ulaw_8000" // carrier-native, 8 kHz
)

// SampleRateFromEncoding returns the sample rate an encoding implies.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	case EncodingULaw:
		return 8000
	default:
		return 16000
	}
}

// VoiceSettings tunes voice delivery on backends that support it.
type VoiceSettings struct {
	// Stability trades expressiveness (low) for consistency (high), 0-1.
	Stability float64

	// SimilarityBoost is how closely output tracks the voice sample, 0-1.
	SimilarityBoost float64

	// Style exaggeration, 0-1. ElevenLabs v2 models only.
	Style float64

	// SpeakerBoost improves clarity over lossy phone audio.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns the delivery used for concierge calls:
// steady and close to the voice sample, boosted for telephony.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}
