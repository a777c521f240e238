package agent

import (
	"log/slog"
	"time"

	"github.com/harborview/voicedesk/pkg/audio"
)

// Config holds the orchestrator timing knobs. Defaults match live call
// behavior; tests shrink the intervals to keep runs fast.
type Config struct {
	// TurnEndSilence is how long the caller must stay quiet after a
	// speech-final transcript before the turn is considered over.
	TurnEndSilence time.Duration

	// ReasoningTimeout bounds one chat completion. On timeout the agent
	// speaks a holding message and retries once.
	ReasoningTimeout time.Duration

	// TransducerTimeout bounds one STT or TTS provider operation.
	TransducerTimeout time.Duration

	// StoreTimeout bounds one tool dispatch against the store.
	StoreTimeout time.Duration

	// PlaybackInterval is the pacing between outbound frames. One
	// canonical frame period in production.
	PlaybackInterval time.Duration

	// MaxToolRounds caps tool-call iterations within a single turn.
	MaxToolRounds int

	// AccountNumberLength is how many DTMF digits form an account
	// number before they are injected as a caller turn.
	AccountNumberLength int

	// Logger for session events.
	Logger *slog.Logger

	metrics *Metrics
}

// DefaultConfig returns production timing.
func DefaultConfig() Config {
	return Config{
		TurnEndSilence:      700 * time.Millisecond,
		ReasoningTimeout:    8 * time.Second,
		TransducerTimeout:   5 * time.Second,
		StoreTimeout:        3 * time.Second,
		PlaybackInterval:    audio.FrameDuration,
		MaxToolRounds:       8,
		AccountNumberLength: 5,
		Logger:              slog.Default(),
	}
}

// Option configures an Agent.
type Option func(*Config)

// WithTurnEndSilence sets the end-of-turn debounce window.
func WithTurnEndSilence(d time.Duration) Option {
	return func(c *Config) { c.TurnEndSilence = d }
}

// WithReasoningTimeout sets the chat completion deadline.
func WithReasoningTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReasoningTimeout = d }
}

// WithTransducerTimeout sets the STT/TTS operation deadline.
func WithTransducerTimeout(d time.Duration) Option {
	return func(c *Config) { c.TransducerTimeout = d }
}

// WithStoreTimeout sets the tool dispatch deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Config) { c.StoreTimeout = d }
}

// WithPlaybackInterval sets the outbound frame pacing.
func WithPlaybackInterval(d time.Duration) Option {
	return func(c *Config) { c.PlaybackInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics attaches a metrics set. Nil metrics are a no-op.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.metrics = m }
}
