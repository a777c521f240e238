// Package agent runs the per-call turn loop: caller audio is
// transcribed, finalized turns go to the reasoning engine, tool calls
// are dispatched through the gateway, and the reply is synthesized back
// to the transport. The orchestrator owns barge-in (caller speech
// cancels agent playback before the next frame) and all of the spoken
// fallback behavior, so a caller is never left in silence by a backend
// failure.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/stt"
	"github.com/harborview/voicedesk/pkg/tools"
	"github.com/harborview/voicedesk/pkg/transport"
	"github.com/harborview/voicedesk/pkg/tts"
)

// Agent orchestrates calls. One Agent serves many concurrent sessions;
// per-call state lives in the call struct created by Run.
type Agent struct {
	stt     stt.Provider
	tts     tts.Provider
	engine  reasoning.Provider
	gateway *tools.Gateway
	config  Config
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	calls map[string]*session.Session
}

// New creates an agent over the given providers.
func New(sttP stt.Provider, ttsP tts.Provider, engine reasoning.Provider, gw *tools.Gateway, opts ...Option) *Agent {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Agent{
		stt:     sttP,
		tts:     ttsP,
		engine:  engine,
		gateway: gw,
		config:  cfg,
		logger:  cfg.Logger.With("component", "agent"),
		metrics: cfg.metrics,
		calls:   make(map[string]*session.Session),
	}
}

// Sessions returns a snapshot of the live sessions, for the dashboard.
func (a *Agent) Sessions() []*session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*session.Session, 0, len(a.calls))
	for _, s := range a.calls {
		out = append(out, s)
	}
	return out
}

// Run drives one call to completion. It blocks until the caller hangs
// up, the context is cancelled, or an unrecoverable backend failure
// ends the session.
func (a *Agent) Run(ctx context.Context, conn transport.Connection) error {
	sess := session.New(conn.Kind())
	logger := a.logger.With("session", sess.ID(), "kind", string(conn.Kind()))

	a.mu.Lock()
	a.calls[sess.ID()] = sess
	a.mu.Unlock()
	a.metrics.sessionStarted()
	defer func() {
		a.mu.Lock()
		delete(a.calls, sess.ID())
		a.mu.Unlock()
		a.metrics.sessionEnded(string(conn.Kind()))
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &call{
		agent:  a,
		sess:   sess,
		conn:   conn,
		spk:    newSpeaker(conn, a.config.PlaybackInterval, logger),
		logger: logger,
		history: []reasoning.Message{
			reasoning.NewSystemMessage(systemPrompt),
		},
	}
	return c.run(ctx)
}

// call is the per-session state owned by one Run invocation.
type call struct {
	agent  *Agent
	sess   *session.Session
	conn   transport.Connection
	spk    *speaker
	logger *slog.Logger

	history    []reasoning.Message
	recentUser []string // last few caller turns, verification context
	pending    []string // finalized segments of the turn in progress
	digits     []byte   // accumulated DTMF account-number digits
}

func (c *call) run(ctx context.Context) error {
	defer c.teardown()

	stream, err := c.openTranscription(ctx)
	if err != nil {
		c.logger.Error("transcription unavailable", "error", err)
		c.sayAndWait(ctx, phraseHearingTrouble)
		c.close("transcription unavailable")
		return err
	}
	defer func() { stream.Close() }()

	if err := c.sess.Connect(); err != nil {
		return err
	}
	c.logger.Info("session started")
	if err := c.say(ctx, phraseGreeting); err != nil {
		c.close("synthesis unavailable")
		return err
	}

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer func() { stopPump() }()
	go c.pumpAudio(pumpCtx, stream)

	digits := c.conn.Digits()
	results := stream.Results()
	errs := stream.Errors()

	var turnTimer *time.Timer
	var endTurn <-chan time.Time
	armTimer := func() {
		if turnTimer != nil {
			turnTimer.Stop()
		}
		turnTimer = time.NewTimer(c.agent.config.TurnEndSilence)
		endTurn = turnTimer.C
	}
	disarmTimer := func() {
		if turnTimer != nil {
			turnTimer.Stop()
			turnTimer = nil
		}
		endTurn = nil
	}

	for {
		select {
		case <-ctx.Done():
			c.close("server shutdown")
			return ctx.Err()

		case <-c.conn.Closed():
			c.close("caller disconnected")
			return c.conn.Err()

		case u, ok := <-results:
			if !ok {
				// The provider dropped the stream mid-call; reopen or
				// end the call with an explanation.
				stopPump()
				replacement, err := c.openTranscription(ctx)
				if err != nil {
					c.logger.Error("transcription lost", "error", err)
					c.sayAndWait(ctx, phraseHearingTrouble)
					c.close("transcription lost")
					return err
				}
				stream = replacement
				results = stream.Results()
				errs = stream.Errors()
				pumpCtx, stopPump = context.WithCancel(ctx)
				go c.pumpAudio(pumpCtx, stream)
				continue
			}
			text := strings.TrimSpace(u.Text)
			if text != "" && c.spk.Speaking() {
				c.logger.Info("barge-in, cancelling agent speech")
				c.agent.metrics.bargeIn()
				c.spk.Interrupt()
			}
			if u.SegmentFinal && text != "" {
				c.pending = append(c.pending, text)
			}
			switch {
			case u.SpeechFinal && len(c.pending) > 0:
				armTimer()
			case text != "":
				// Caller is still talking; hold the turn open.
				disarmTimer()
			}

		case err := <-errs:
			c.logger.Warn("transcription error", "error", err)

		case d, ok := <-digits:
			if !ok {
				digits = nil
				continue
			}
			text, complete := c.pushDigit(d)
			if !complete {
				continue
			}
			disarmTimer()
			c.pending = nil
			if done := c.runTurn(ctx, text); done {
				return nil
			}

		case <-endTurn:
			disarmTimer()
			text := strings.TrimSpace(strings.Join(c.pending, " "))
			c.pending = nil
			if text == "" {
				continue
			}
			if done := c.runTurn(ctx, text); done {
				return nil
			}
		}
	}
}

// pumpAudio feeds caller frames into the transcription stream, logging
// sequence gaps. Frames are never reordered.
func (c *call) pumpAudio(ctx context.Context, stream stt.Stream) {
	var gaps audio.GapDetector
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-c.conn.Frames():
			if !ok {
				return
			}
			if g := gaps.Observe(f.Seq); g > 0 {
				c.logger.Warn("caller audio gap", "missing", g, "seq", f.Seq)
			}
			c.sess.Touch()
			if err := stream.SendAudio(ctx, f.PCM); err != nil {
				if !errors.Is(err, stt.ErrStreamClosed) && ctx.Err() == nil {
					c.logger.Warn("audio forward failed", "error", err)
				}
				return
			}
		}
	}
}

// pushDigit accumulates keyed account-number digits. Once a full
// account number is entered it is injected as a caller turn. Star and
// pound clear the buffer.
func (c *call) pushDigit(d byte) (string, bool) {
	if d < '0' || d > '9' {
		c.digits = c.digits[:0]
		return "", false
	}
	c.digits = append(c.digits, d)
	if len(c.digits) < c.agent.config.AccountNumberLength {
		return "", false
	}
	num := string(c.digits)
	c.digits = c.digits[:0]
	c.logger.Info("account number keyed in via dtmf")
	return fmt.Sprintf("My account number is %s.", num), true
}

// openTranscription opens an STT stream, retrying twice before giving up.
func (c *call) openTranscription(ctx context.Context) (stt.Stream, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		octx, cancel := context.WithTimeout(ctx, c.agent.config.TransducerTimeout)
		stream, err := c.agent.stt.OpenStream(octx)
		cancel()
		if err == nil {
			return stream, nil
		}
		lastErr = err
		c.logger.Warn("transcription open failed", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// say synthesizes text and starts playback, returning immediately so
// the turn loop stays responsive to barge-in. Synthesis is retried
// twice; if it stays down the error comes back so the turn loop can end
// the call instead of leaving the line silent.
func (c *call) say(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		stream, err := c.agent.tts.Stream(ctx, text)
		if err == nil {
			c.spk.Play(ctx, stream)
			return nil
		}
		lastErr = err
		c.logger.Warn("synthesis failed", "attempt", attempt+1, "error", err)
	}
	c.logger.Error("synthesis unavailable", "error", lastErr)
	return lastErr
}

// sayAndWait speaks and blocks until playback finishes. Used for final
// phrases spoken right before the session closes.
func (c *call) sayAndWait(ctx context.Context, text string) {
	c.say(ctx, text)
	c.spk.Wait()
}

// close moves the session toward Closing and records any in-flight
// tool call as cancelled so a late replay cannot re-execute it.
func (c *call) close(reason string) {
	cancelled := c.sess.Close(reason)
	if cancelled != "" {
		c.agent.gateway.RecordCancelled(c.sess.ID(), cancelled)
	}
}

func (c *call) teardown() {
	c.close("session ended")
	c.spk.Interrupt()
	c.agent.gateway.Forget(c.sess.ID())
	c.sess.MarkClosed()
	_ = c.conn.Close()
	c.logger.Info("session closed", "reason", c.sess.CloseReason())
}
