package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborview/voicedesk/internal/httpc"
)

const (
	deepgramWSBaseURL = "wss://api.deepgram.com/v1/listen"
	deepgramAPIURL    = "https://api.deepgram.com/v1/projects"

	providerDeepgram = "deepgram"

	// keepAliveInterval keeps the websocket open during silence.
	keepAliveInterval = 5 * time.Second

	resultBuffer = 16
)

// Deepgram implements streaming transcription over the Deepgram
// live-listen WebSocket API.
type Deepgram struct {
	config *Config
	logger *slog.Logger
	http   *http.Client
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Deepgram{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.deepgram"),
		http:   httpc.NewClient(10 * time.Second),
	}, nil
}

// OpenStream dials the live-listen endpoint and starts the read loop.
func (d *Deepgram) OpenStream(ctx context.Context) (Stream, error) {
	return d.openStreamAt(ctx, d.streamURL())
}

func (d *Deepgram) openStreamAt(ctx context.Context, u string) (Stream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u, headers)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerDeepgram,
				fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
		}
		return nil, WrapError(providerDeepgram, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	// The caller's ctx bounds the dial only. The stream outlives it:
	// its lifetime ends at Close, not when the dial deadline fires.
	streamCtx, cancel := context.WithCancel(context.Background())
	s := &deepgramStream{
		conn:    conn,
		logger:  d.logger,
		results: make(chan Utterance, resultBuffer),
		errs:    make(chan error, 4),
		ctx:     streamCtx,
		cancel:  cancel,
	}

	go s.readLoop()
	go s.keepAliveLoop()

	return s, nil
}

// Health verifies the API key against the management API.
func (d *Deepgram) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, deepgramAPIURL, nil)
	if err != nil {
		return WrapError(providerDeepgram, err)
	}
	req.Header.Set("Authorization", "Token "+d.config.APIKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return WrapError(providerDeepgram, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapError(providerDeepgram, fmt.Errorf("health check: status %d", resp.StatusCode))
	}
	return nil
}

// Close releases resources.
func (d *Deepgram) Close() error {
	d.http.CloseIdleConnections()
	return nil
}

// streamURL builds the live-listen URL with query params.
func (d *Deepgram) streamURL() string {
	q := url.Values{}
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.FormatInt(d.config.Endpointing.Milliseconds(), 10))
	return deepgramWSBaseURL + "?" + q.Encode()
}

// deepgramStream is a live transcription session.
type deepgramStream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	closed  bool

	results chan Utterance
	errs    chan error

	ctx    context.Context
	cancel context.CancelFunc
}

// SendAudio writes a PCM16 chunk as a binary frame.
func (s *deepgramStream) SendAudio(ctx context.Context, pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return WrapError(providerDeepgram, err)
	}
	return nil
}

// Results returns the transcription channel.
func (s *deepgramStream) Results() <-chan Utterance {
	return s.results
}

// Errors returns the error channel.
func (s *deepgramStream) Errors() <-chan error {
	return s.errs
}

// Close terminates the session.
func (s *deepgramStream) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true

	// CloseStream tells Deepgram to flush pending results.
	_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	s.cancel()
	return s.conn.Close()
}

// deepgramResponse is the live-listen wire format.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	// SpeechFinal marks provider-detected end of speech.
	SpeechFinal bool `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// readLoop reads transcription messages until the connection drops.
func (s *deepgramStream) readLoop() {
	defer close(s.results)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.pushError(WrapError(providerDeepgram, err))
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			s.logger.Warn("failed to parse response", "error", err)
			continue
		}

		if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" && !resp.SpeechFinal {
			continue
		}

		u := Utterance{
			Text:         alt.Transcript,
			Confidence:   alt.Confidence,
			SegmentFinal: resp.IsFinal,
			SpeechFinal:  resp.SpeechFinal,
		}

		select {
		case s.results <- u:
		case <-s.ctx.Done():
			return
		}
	}
}

// keepAliveLoop sends periodic keepalives so Deepgram holds the
// connection open through caller silence.
func (s *deepgramStream) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if s.closed {
				s.writeMu.Unlock()
				return
			}
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.writeMu.Unlock()
			if err != nil {
				s.pushError(WrapError(providerDeepgram, err))
				return
			}
		}
	}
}

func (s *deepgramStream) pushError(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Warn("error channel full, dropping", "error", err)
	}
}

// Ensure interfaces are satisfied
var (
	_ Provider = (*Deepgram)(nil)
	_ Stream   = (*deepgramStream)(nil)
)
