package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/notify"
	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/store"
	"github.com/harborview/voicedesk/pkg/stt"
	"github.com/harborview/voicedesk/pkg/tools"
	"github.com/harborview/voicedesk/pkg/transport"
	"github.com/harborview/voicedesk/pkg/tts"
)

// testCall wires an agent to mocks with fast timing and runs a call.
type testCall struct {
	agent  *Agent
	conn   *transport.Mock
	sttP   *stt.Mock
	ttsP   *tts.Mock
	engine *reasoning.Mock
	done   chan error
	ended  bool
}

func startCall(t *testing.T, engine *reasoning.Mock, opts ...Option) *testCall {
	t.Helper()

	gw := tools.NewGateway(store.NewSeededMemory(), notify.New())
	conn := transport.NewMock(session.KindTelephony)
	sttP := stt.NewMock()
	ttsP := tts.NewMock()

	base := []Option{
		WithTurnEndSilence(10 * time.Millisecond),
		WithReasoningTimeout(250 * time.Millisecond),
		WithTransducerTimeout(250 * time.Millisecond),
		WithStoreTimeout(250 * time.Millisecond),
		WithPlaybackInterval(time.Millisecond),
	}
	a := New(sttP, ttsP, engine, gw, append(base, opts...)...)

	tc := &testCall{agent: a, conn: conn, sttP: sttP, ttsP: ttsP, engine: engine, done: make(chan error, 1)}
	go func() { tc.done <- a.Run(context.Background(), conn) }()

	waitFor(t, func() bool { return len(sttP.Streams()) > 0 }, "stt stream open")
	t.Cleanup(func() {
		conn.Close()
		tc.waitDone(t)
	})
	return tc
}

// stream returns the live transcription stream.
func (tc *testCall) stream(t *testing.T) *stt.MockStream {
	t.Helper()
	streams := tc.sttP.Streams()
	return streams[len(streams)-1]
}

// speak finalizes one caller turn.
func (tc *testCall) speak(t *testing.T, text string) {
	t.Helper()
	tc.stream(t).EmitFinal(text)
}

// spokenTexts returns every text handed to synthesis so far.
func (tc *testCall) spokenTexts() []string {
	var out []string
	for _, c := range tc.ttsP.Calls() {
		if c.Method == "Stream" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (tc *testCall) saidSomethingLike(fragment string) bool {
	for _, s := range tc.spokenTexts() {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func (tc *testCall) waitDone(t *testing.T) {
	t.Helper()
	if tc.ended {
		return
	}
	select {
	case <-tc.done:
		tc.ended = true
	case <-time.After(2 * time.Second):
		t.Fatal("call did not end")
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// scriptedEngine responds per turn: each entry handles one Chat call.
func scriptedEngine(responses ...func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error)) *reasoning.Mock {
	var n atomic.Int64
	m := reasoning.NewMock()
	m.ChatFunc = func(ctx context.Context, req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
		i := int(n.Add(1)) - 1
		if i >= len(responses) {
			return textResponse("Is there anything else I can help you with?")(req)
		}
		return responses[i](req)
	}
	return m
}

func textResponse(text string) func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
	return func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
		return &reasoning.ChatResponse{
			Message:      reasoning.NewAssistantMessage(text),
			FinishReason: "stop",
		}, nil
	}
}

func toolResponse(id, name, args string) func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
	return func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
		return &reasoning.ChatResponse{
			Message: reasoning.Message{
				Role:      reasoning.RoleAssistant,
				ToolCalls: []reasoning.ToolCall{{ID: id, Name: name, Arguments: args}},
			},
			FinishReason: "tool_calls",
		}, nil
	}
}

func TestCallGreeting(t *testing.T) {
	tc := startCall(t, reasoning.NewMock())

	waitFor(t, func() bool { return tc.saidSomethingLike("Harborview") }, "greeting synthesis")
	waitFor(t, func() bool { return len(tc.conn.Sent()) > 0 }, "greeting frames")

	sent := tc.conn.Sent()
	if sent[0].Source != audio.SourceAgent {
		t.Errorf("outbound source = %s, want agent", sent[0].Source)
	}
	if sent[0].Seq != 1 {
		t.Errorf("outbound seq starts at %d, want 1", sent[0].Seq)
	}
}

func TestCallBasicTurn(t *testing.T) {
	engine := scriptedEngine(textResponse("Hello! Could I get your account number, please?"))
	tc := startCall(t, engine)

	tc.speak(t, "hi there")

	waitFor(t, func() bool { return engine.CallCount("Chat") >= 1 }, "reasoning call")
	waitFor(t, func() bool { return tc.saidSomethingLike("account number") }, "reply synthesis")
}

func TestCallTurnDebounce(t *testing.T) {
	engine := scriptedEngine(textResponse("Got it."))
	tc := startCall(t, engine)

	// A speech-final segment followed quickly by more speech merges
	// into one turn instead of firing two.
	s := tc.stream(t)
	s.EmitFinal("I want to change")
	s.Emit(stt.Utterance{Text: "my reservation", SegmentFinal: true, SpeechFinal: true})

	waitFor(t, func() bool { return engine.CallCount("Chat") >= 1 }, "reasoning call")
	time.Sleep(50 * time.Millisecond)
	if got := engine.CallCount("Chat"); got != 1 {
		t.Errorf("chat calls = %d, want 1 merged turn", got)
	}
}

func TestCallBargeIn(t *testing.T) {
	// A long reply so playback is still running when the caller speaks.
	engine := scriptedEngine(textResponse(strings.Repeat("This is a very long explanation. ", 20)))
	tc := startCall(t, engine)

	tc.speak(t, "hello")
	waitFor(t, func() bool { return engine.CallCount("Chat") >= 1 }, "reasoning call")
	waitFor(t, func() bool { return len(tc.conn.Sent()) > 10 }, "playback running")

	// Interim speech interrupts.
	tc.stream(t).Emit(stt.Utterance{Text: "wait"})
	waitFor(t, func() bool { return tc.conn.FlushCount() > 0 }, "carrier flush on barge-in")

	n := len(tc.conn.Sent())
	time.Sleep(30 * time.Millisecond)
	if after := len(tc.conn.Sent()); after > n+1 {
		t.Errorf("frames kept flowing after barge-in: %d -> %d", n, after)
	}
}

func TestCallVerificationFlow(t *testing.T) {
	engine := scriptedEngine(
		toolResponse("call_1", tools.ToolCheckAccountStatus, `{"account_id":"10001"}`),
		textResponse("Thanks John, you're verified. How can I help?"),
		toolResponse("call_2", tools.ToolGetGuestReservation, `{"account_id":"10001","search_name":"John Smith"}`),
		textResponse("I found your reservation."),
	)
	tc := startCall(t, engine)

	tc.speak(t, "My account number is 10001 and my name is John Smith")
	waitFor(t, func() bool { return engine.CallCount("Chat") >= 2 }, "verification round trip")

	sessions := tc.agent.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(sessions))
	}
	waitFor(t, func() bool { return sessions[0].Verified() }, "session verified")
	if got := sessions[0].AccountID(); got != "10001" {
		t.Errorf("account = %q, want 10001", got)
	}

	tc.speak(t, "What reservations do I have?")
	waitFor(t, func() bool { return engine.CallCount("Chat") >= 4 }, "lookup round trip")
	waitFor(t, func() bool { return tc.saidSomethingLike("found your reservation") }, "lookup reply")
}

func TestCallVerificationRejectsWrongName(t *testing.T) {
	engine := scriptedEngine(
		toolResponse("call_1", tools.ToolCheckAccountStatus, `{"account_id":"10001"}`),
		textResponse("I couldn't verify that, could you double-check?"),
	)
	tc := startCall(t, engine)

	tc.speak(t, "Account 10001, the name is Bob Jones")
	waitFor(t, func() bool { return engine.CallCount("Chat") >= 2 }, "verification round trip")

	sessions := tc.agent.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(sessions))
	}
	if sessions[0].Verified() {
		t.Error("session verified with the wrong name")
	}
	if got := sessions[0].VerifyAttempts(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCallVerificationExhaustion(t *testing.T) {
	var responses []func(req *reasoning.ChatRequest) (*reasoning.ChatResponse, error)
	for i := 0; i < session.MaxVerifyAttempts; i++ {
		responses = append(responses,
			toolResponse(fmt.Sprintf("call_%d", i), tools.ToolCheckAccountStatus, `{"account_id":"99999"}`),
			textResponse("Hmm, that didn't work. Could you double-check?"),
		)
	}
	engine := scriptedEngine(responses...)
	tc := startCall(t, engine)

	for i := 0; i < session.MaxVerifyAttempts; i++ {
		tc.speak(t, "Account 99999, name Nobody")
		// Each attempt costs one chat plus, until the last one, a reply.
		waitFor(t, func() bool { return engine.CallCount("Chat") >= i*2+1 }, "verification attempt")
		time.Sleep(20 * time.Millisecond)
	}

	tc.waitDone(t)
	if !tc.saidSomethingLike("For security reasons") {
		t.Errorf("exhaustion phrase not spoken; said %q", tc.spokenTexts())
	}
}

func TestCallReasoningFailure(t *testing.T) {
	engine := reasoning.NewMock()
	engine.ChatFunc = func(ctx context.Context, req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
		return nil, errors.New("backend down")
	}
	tc := startCall(t, engine)

	tc.speak(t, "hello")
	tc.waitDone(t)

	if got := engine.CallCount("Chat"); got != 2 {
		t.Errorf("chat attempts = %d, want initial plus one retry", got)
	}
	if !tc.saidSomethingLike("still looking into that") {
		t.Error("holding phrase not spoken before retry")
	}
	if !tc.saidSomethingLike("trouble with our system") {
		t.Error("failure phrase not spoken")
	}
}

func TestCallDTMFAccountEntry(t *testing.T) {
	var captured atomic.Value
	engine := reasoning.NewMock()
	engine.ChatFunc = func(ctx context.Context, req *reasoning.ChatRequest) (*reasoning.ChatResponse, error) {
		captured.Store(req.Messages[len(req.Messages)-1].Content)
		return &reasoning.ChatResponse{Message: reasoning.NewAssistantMessage("Thanks!")}, nil
	}
	tc := startCall(t, engine)

	for _, d := range []byte("10001") {
		tc.conn.PushDigit(d)
	}
	waitFor(t, func() bool { return engine.CallCount("Chat") >= 1 }, "dtmf turn")

	if got, _ := captured.Load().(string); got != "My account number is 10001." {
		t.Errorf("injected turn = %q", got)
	}
}

func TestCallDisconnectCancelsPendingTool(t *testing.T) {
	engine := reasoning.NewMock()
	tc := startCall(t, engine)

	sessions := tc.agent.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(sessions))
	}
	sess := sessions[0]

	tc.conn.Close()
	tc.waitDone(t)

	if got := sess.State(); got != session.StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if len(tc.agent.Sessions()) != 0 {
		t.Error("session still listed after teardown")
	}
}

func TestMetrics(t *testing.T) {
	t.Run("registers cleanly", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		m.sessionStarted()
		m.turn()
		m.toolCall("check_account_status", "ok")
		m.bargeIn()
		m.reasoningLatency(0.5)
		m.sessionEnded("telephony")
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		m.sessionStarted()
		m.turn()
		m.toolCall("x", "y")
		m.bargeIn()
		m.reasoningLatency(1)
		m.sessionEnded("webrtc")
	})
}

func TestCallGreetingSynthesisFailure(t *testing.T) {
	ttsP := tts.NewMock()
	ttsP.StreamFunc = func(ctx context.Context, text string) (tts.AudioStream, error) {
		return nil, tts.ErrProviderUnavailable
	}

	gw := tools.NewGateway(store.NewSeededMemory(), notify.New())
	conn := transport.NewMock(session.KindTelephony)
	a := New(stt.NewMock(), ttsP, reasoning.NewMock(), gw,
		WithPlaybackInterval(time.Millisecond),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), conn) }()

	select {
	case err := <-done:
		if !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("err = %v, want ErrProviderUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call kept running with synthesis down")
	}
	if got := ttsP.CallCount("Stream"); got != 3 {
		t.Errorf("synthesis attempts = %d, want 3", got)
	}
}

func TestCallSynthesisFailureMidCall(t *testing.T) {
	// The greeting synthesizes fine, then the provider goes down for
	// good. The call must end rather than leave the line silent.
	var n atomic.Int64
	ttsP := tts.NewMock()
	synthOK := ttsP.SynthesizeFunc
	ttsP.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		if n.Add(1) == 1 {
			return synthOK(ctx, text)
		}
		return nil, tts.ErrProviderUnavailable
	}

	sttP := stt.NewMock()
	gw := tools.NewGateway(store.NewSeededMemory(), notify.New())
	conn := transport.NewMock(session.KindTelephony)
	engine := scriptedEngine(textResponse("Happy to help with that."))
	a := New(sttP, ttsP, engine, gw,
		WithTurnEndSilence(10*time.Millisecond),
		WithReasoningTimeout(250*time.Millisecond),
		WithTransducerTimeout(250*time.Millisecond),
		WithPlaybackInterval(time.Millisecond),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), conn) }()
	waitFor(t, func() bool { return len(a.Sessions()) == 1 }, "session listed")
	sess := a.Sessions()[0]
	waitFor(t, func() bool { return len(sttP.Streams()) > 0 }, "stt stream open")

	streams := sttP.Streams()
	streams[len(streams)-1].EmitFinal("hello")

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call kept running with synthesis down")
	}

	if got := sess.State(); got != session.StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if got := sess.CloseReason(); !strings.Contains(got, "synthesis") {
		t.Errorf("close reason = %q", got)
	}

	var goodbye bool
	for _, call := range ttsP.Calls() {
		if call.Method == "Stream" && strings.Contains(call.Text, "Goodbye") {
			goodbye = true
		}
	}
	if !goodbye {
		t.Error("no goodbye attempted before hanging up")
	}
}

func TestCallTranscriptionOpenFailure(t *testing.T) {
	sttP := stt.NewMock()
	var attempts atomic.Int64
	sttP.OpenStreamFunc = func(ctx context.Context) (stt.Stream, error) {
		attempts.Add(1)
		return nil, stt.ErrUnavailable
	}

	gw := tools.NewGateway(store.NewSeededMemory(), notify.New())
	conn := transport.NewMock(session.KindWebRTC)
	ttsP := tts.NewMock()
	a := New(sttP, ttsP, reasoning.NewMock(), gw,
		WithTransducerTimeout(50*time.Millisecond),
		WithPlaybackInterval(time.Millisecond),
	)

	err := a.Run(context.Background(), conn)
	if !errors.Is(err, stt.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("open attempts = %d, want 3", got)
	}
	if ttsP.CallCount("Stream") == 0 {
		t.Error("no spoken explanation before hanging up")
	}
}
