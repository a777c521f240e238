package stt

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Model is the provider-specific model name.
	Model string

	// Language code (BCP-47).
	Language string

	// SampleRate of the inbound PCM16 audio in Hz.
	SampleRate int

	// Endpointing is the provider-side silence window that triggers
	// speech_final. Kept below the orchestrator's own turn-end debounce
	// so the provider fires first.
	Endpointing time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the language code.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithSampleRate sets the inbound audio sample rate.
func WithSampleRate(hz int) Option {
	return func(c *Config) { c.SampleRate = hz }
}

// WithEndpointing sets the provider silence window.
func WithEndpointing(d time.Duration) Option {
	return func(c *Config) { c.Endpointing = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for Deepgram.
func DefaultConfig() *Config {
	return &Config{
		Model:       "nova-2",
		Language:    "en-US",
		SampleRate:  16000,
		Endpointing: 300 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
