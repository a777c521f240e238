// Package stt provides a unified interface for streaming speech-to-text
// providers. A provider opens one Stream per call; the caller feeds it
// 16kHz mono PCM16 and receives interim and final utterances on a channel.
//
// Example usage:
//
//	provider, _ := stt.NewDeepgram(
//	    stt.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.OpenStream(ctx)
//	defer stream.Close()
//
//	go func() {
//	    for u := range stream.Results() {
//	        if u.SpeechFinal {
//	            // end of user turn
//	        }
//	    }
//	}()
package stt

import "context"

// Utterance is a transcription result from the provider.
type Utterance struct {
	// Text is the transcribed text for this segment.
	Text string

	// Confidence score (0-1).
	Confidence float64

	// SegmentFinal means the provider marked this transcript segment as
	// final. Multiple final segments can occur within a single user turn.
	SegmentFinal bool

	// SpeechFinal means the provider detected end of speech. This is the
	// signal that finalizes a user turn.
	SpeechFinal bool
}

// Stream is a live transcription session.
type Stream interface {
	// SendAudio sends a chunk of 16kHz mono PCM16 audio.
	SendAudio(ctx context.Context, pcm []byte) error

	// Results returns the channel of transcription results.
	// Closed when the stream ends.
	Results() <-chan Utterance

	// Errors returns the channel of stream errors.
	Errors() <-chan error

	// Close terminates the session.
	Close() error
}

// Provider opens transcription streams.
type Provider interface {
	// OpenStream starts a new transcription session.
	OpenStream(ctx context.Context) (Stream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
