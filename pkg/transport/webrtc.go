package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/session"
)

// WebRTC adapts a pion PeerConnection to a Connection. Audio is
// negotiated as G.711 μ-law (PCMU) in both directions, which every
// browser supports and which keeps the codec path free of native
// dependencies; the transport converts to and from the canonical
// format at the edge.
type WebRTC struct {
	pc  *webrtc.PeerConnection
	out *webrtc.TrackLocalStaticSample

	logger  *slog.Logger
	inbound *audio.Queue
	seq     *audio.Sequencer
	chunk   audio.Chunker

	mu     sync.Mutex
	closed bool
	err    error

	done chan struct{}
}

// NewWebRTC creates a peer connection restricted to PCMU audio.
// Signalling (offer/answer exchange) is driven by the caller through
// HandleOffer.
func NewWebRTC(logger *slog.Logger) (*WebRTC, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: carrierRate,
			Channels:  1,
		},
		PayloadType: 0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("transport: register codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("transport: peer connection: %w", err)
	}

	out, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: carrierRate,
		Channels:  1,
	}, "audio", "voicedesk")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: outbound track: %w", err)
	}
	if _, err := pc.AddTrack(out); err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: add track: %w", err)
	}

	w := &WebRTC{
		pc:      pc,
		out:     out,
		logger:  logger.With("component", "transport.webrtc"),
		inbound: audio.NewQueue(inboundQueueFrames),
		seq:     audio.NewSequencer(audio.SourceCaller),
		done:    make(chan struct{}),
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		w.logger.Info("caller audio track up", "codec", track.Codec().MimeType)
		go w.readTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		w.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			w.fail(fmt.Errorf("transport: peer connection failed"))
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			w.shutdown(nil)
		}
	})

	return w, nil
}

// HandleOffer answers a remote SDP offer. ICE candidates are gathered
// before returning, so the answer is complete (non-trickle).
func (w *WebRTC) HandleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := w.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("transport: set remote description: %w", err)
	}

	answer, err := w.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("transport: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(w.pc)
	if err := w.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("transport: set local description: %w", err)
	}
	<-gathered

	return w.pc.LocalDescription().SDP, nil
}

// Frames returns inbound caller audio.
func (w *WebRTC) Frames() <-chan audio.Frame { return w.inbound.Frames() }

// Digits returns nil; WebRTC has no DTMF side channel here.
func (w *WebRTC) Digits() <-chan byte { return nil }

// Closed is signalled when the connection ends.
func (w *WebRTC) Closed() <-chan struct{} { return w.done }

// Err returns the terminal error, if any.
func (w *WebRTC) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Kind identifies this as a WebRTC connection.
func (w *WebRTC) Kind() session.Kind { return session.KindWebRTC }

// Send writes one frame of agent speech to the browser.
func (w *WebRTC) Send(f audio.Frame) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	sample := media.Sample{
		Data:     canonicalToMulaw(f.PCM),
		Duration: audio.FrameDuration,
	}
	if err := w.out.WriteSample(sample); err != nil {
		return fmt.Errorf("transport: write sample: %w", err)
	}
	return nil
}

// Close tears the connection down.
func (w *WebRTC) Close() error {
	w.shutdown(nil)
	return nil
}

// readTrack pulls RTP from the caller track and queues canonical frames.
func (w *WebRTC) readTrack(track *webrtc.TrackRemote) {
	var prevSeq uint16
	first := true

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			w.shutdown(nil)
			return
		}

		if gap := rtpGap(prevSeq, pkt, first); gap > 0 {
			w.logger.Warn("carrier packet loss", "missing", gap)
		}
		prevSeq = pkt.SequenceNumber
		first = false

		if len(pkt.Payload) == 0 {
			continue
		}
		w.deliver(mulawToCanonical(pkt.Payload))
	}
}

// rtpGap returns the number of RTP packets missing before pkt.
func rtpGap(prev uint16, pkt *rtp.Packet, first bool) int {
	if first {
		return 0
	}
	// Sequence numbers wrap at 16 bits.
	delta := pkt.SequenceNumber - prev
	if delta == 0 || delta > 0x8000 {
		return 0 // duplicate or reordered
	}
	return int(delta) - 1
}

// deliver re-chunks decoded PCM into canonical frames and queues them.
func (w *WebRTC) deliver(pcm []byte) {
	for _, payload := range w.chunk.Push(pcm) {
		ok, err := w.inbound.Push(w.seq.Stamp(payload))
		if err != nil {
			return
		}
		if !ok {
			w.logger.Warn("inbound frame dropped, queue full")
		}
	}
}

func (w *WebRTC) fail(err error) {
	w.mu.Lock()
	if w.err == nil && !w.closed {
		w.err = err
	}
	w.mu.Unlock()
	w.shutdown(err)
}

func (w *WebRTC) shutdown(err error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if err != nil && w.err == nil {
		w.err = err
	}
	w.mu.Unlock()

	w.inbound.Close()
	close(w.done)
	_ = w.pc.Close()
}

// Ensure interface is satisfied
var _ Connection = (*WebRTC)(nil)
