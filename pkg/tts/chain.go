package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Chain is a Provider that falls back across backends in order. The
// first backend to answer wins. The concierge runs ElevenLabs first
// with OpenAI behind it, so a vendor outage costs latency, not the
// call.
type Chain struct {
	backends []Provider
	logger   *slog.Logger
}

// NewChain builds a fallback chain. At least one backend is required.
func NewChain(backends ...Provider) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		backends: backends,
		logger:   slog.Default().With("component", "tts.chain"),
	}, nil
}

// NewChainWithLogger builds a fallback chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, backends ...Provider) (*Chain, error) {
	chain, err := NewChain(backends...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "tts.chain")
	return chain, nil
}

// Synthesize tries each backend in order until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var failures []error
	for i, b := range c.backends {
		result, err := b.Synthesize(ctx, text)
		if err == nil {
			c.noteFallback(i, text)
			return result, nil
		}
		failures = append(failures, err)
		c.logger.Warn("backend failed", "backend", i, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: failures}
}

// Stream tries each backend in order until one succeeds.
func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	var failures []error
	for i, b := range c.backends {
		stream, err := b.Stream(ctx, text)
		if err == nil {
			c.noteFallback(i, text)
			return stream, nil
		}
		failures = append(failures, err)
		c.logger.Warn("backend stream failed", "backend", i, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: failures}
}

func (c *Chain) noteFallback(i int, text string) {
	if i > 0 {
		c.logger.Info("fallback backend served request", "backend", i, "chars", len(text))
	}
}

// Health succeeds when at least one backend is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error
	for _, b := range c.backends {
		if err := b.Health(ctx); err != nil {
			lastErr = err
			continue
		}
		healthy++
	}
	if healthy == 0 {
		return fmt.Errorf("all %d backends unhealthy: %w", len(c.backends), lastErr)
	}
	return nil
}

// Close closes every backend, returning the last error seen.
func (c *Chain) Close() error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ChainError carries the failure from every backend that was tried.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no errors recorded"
	case 1:
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("tts chain: all %d backends failed, last: %v",
			len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap returns the last backend error.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

var _ Provider = (*Chain)(nil)
