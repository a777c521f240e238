package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/session"
)

// WSConn is the subset of a websocket connection the telephony
// transport needs. Both gorilla and fiber websocket conns satisfy it.
type WSConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wsTextMessage matches websocket.TextMessage in both libraries.
const wsTextMessage = 1

// inboundQueueFrames bounds buffered caller audio (~1.3s).
const inboundQueueFrames = 64

// mediaMessage is the carrier media-stream wire format. The carrier
// speaks 8kHz μ-law, base64-encoded, with a DTMF side channel.
type mediaMessage struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
		CallSID   string `json:"callSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
	StreamSID string `json:"streamSid,omitempty"`
}

// outboundMedia is the frame we write back to the carrier.
type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// Telephony adapts a carrier media-stream websocket to a Connection.
type Telephony struct {
	conn   WSConn
	logger *slog.Logger

	inbound *audio.Queue
	digits  chan byte
	seq     *audio.Sequencer
	chunk   audio.Chunker

	mu        sync.Mutex
	streamSID string
	callSID   string
	started   bool
	closed    bool
	err       error

	done chan struct{}
}

// NewTelephony wraps an accepted media-stream websocket and starts the
// read loop. The connection is usable once the carrier's start message
// arrives; frames before it are dropped.
func NewTelephony(conn WSConn, logger *slog.Logger) *Telephony {
	t := &Telephony{
		conn:    conn,
		logger:  logger.With("component", "transport.telephony"),
		inbound: audio.NewQueue(inboundQueueFrames),
		digits:  make(chan byte, 16),
		seq:     audio.NewSequencer(audio.SourceCaller),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Frames returns inbound caller audio.
func (t *Telephony) Frames() <-chan audio.Frame { return t.inbound.Frames() }

// Digits returns the DTMF side channel.
func (t *Telephony) Digits() <-chan byte { return t.digits }

// Closed is signalled when the stream ends.
func (t *Telephony) Closed() <-chan struct{} { return t.done }

// Err returns the terminal error, if any.
func (t *Telephony) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Kind identifies this as a telephony connection.
func (t *Telephony) Kind() session.Kind { return session.KindTelephony }

// StreamSID returns the carrier stream identifier once started.
func (t *Telephony) StreamSID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamSID
}

// Send writes one frame of agent speech to the carrier.
func (t *Telephony) Send(f audio.Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.started {
		t.mu.Unlock()
		return ErrNotConnected
	}
	sid := t.streamSID
	t.mu.Unlock()

	msg := outboundMedia{Event: "media", StreamSID: sid}
	msg.Media.Payload = base64.StdEncoding.EncodeToString(canonicalToMulaw(f.PCM))

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: encode media: %w", err)
	}
	if err := t.conn.WriteMessage(wsTextMessage, data); err != nil {
		t.fail(err)
		return ErrClosed
	}
	return nil
}

// Flush asks the carrier to drop any audio it has buffered but not yet
// played. Called on barge-in.
func (t *Telephony) Flush() error {
	t.mu.Lock()
	if t.closed || !t.started {
		t.mu.Unlock()
		return ErrClosed
	}
	sid := t.streamSID
	t.mu.Unlock()

	data, err := json.Marshal(map[string]string{"event": "clear", "streamSid": sid})
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(wsTextMessage, data)
}

// Close tears the connection down.
func (t *Telephony) Close() error {
	t.shutdown(nil)
	return nil
}

func (t *Telephony) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}

		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("unparseable media message", "error", err)
			continue
		}

		switch msg.Event {
		case "connected":
			// Protocol preamble, nothing to do yet.

		case "start":
			if msg.Start == nil {
				continue
			}
			t.mu.Lock()
			t.streamSID = msg.Start.StreamSID
			t.callSID = msg.Start.CallSID
			t.started = true
			t.mu.Unlock()
			t.logger.Info("media stream started",
				"stream_sid", msg.Start.StreamSID, "call_sid", msg.Start.CallSID)

		case "media":
			if msg.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				t.logger.Warn("undecodable media payload", "error", err)
				continue
			}
			t.deliver(mulawToCanonical(payload))

		case "dtmf":
			if msg.DTMF == nil || len(msg.DTMF.Digit) == 0 {
				continue
			}
			select {
			case t.digits <- msg.DTMF.Digit[0]:
			default:
				t.logger.Warn("dtmf digit dropped, channel full")
			}

		case "stop":
			t.logger.Info("media stream stopped by carrier")
			t.shutdown(nil)
			return
		}
	}
}

// deliver re-chunks decoded PCM into canonical frames and queues them.
func (t *Telephony) deliver(pcm []byte) {
	for _, payload := range t.chunk.Push(pcm) {
		ok, err := t.inbound.Push(t.seq.Stamp(payload))
		if err != nil {
			return
		}
		if !ok {
			t.logger.Warn("inbound frame dropped, queue full")
		}
	}
}

func (t *Telephony) fail(err error) {
	t.mu.Lock()
	if t.err == nil && !t.closed {
		t.err = err
	}
	t.mu.Unlock()
	t.shutdown(err)
}

func (t *Telephony) shutdown(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if err != nil && t.err == nil {
		t.err = err
	}
	t.mu.Unlock()

	t.inbound.Close()
	close(t.digits)
	close(t.done)
	_ = t.conn.Close()
}

// Ensure interfaces are satisfied
var (
	_ Connection = (*Telephony)(nil)
	_ Flusher    = (*Telephony)(nil)
)
