package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey means the provider was built without credentials.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID means a voice-scoped provider has no voice configured.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("tts: stream closed")

	// ErrProviderUnavailable means no backend could serve the request.
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is a non-200 response from a synthesis API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }

// IsUnauthorized reports HTTP 401.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == 401 }

// IsServerError reports HTTP 5xx.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// IsRetryable reports whether a retry could plausibly succeed.
func (e *APIError) IsRetryable() bool { return e.IsRateLimited() || e.IsServerError() }

// ProviderError tags an error with the backend it came from, so chain
// failures stay attributable in logs.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with the backend name. Nil stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
