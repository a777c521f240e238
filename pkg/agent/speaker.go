package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harborview/voicedesk/pkg/audio"
	"github.com/harborview/voicedesk/pkg/transport"
	"github.com/harborview/voicedesk/pkg/tts"
)

// speaker owns the outbound audio path for one session. At most one
// playback runs at a time; starting a new one or calling Interrupt
// cancels the current one, and cancellation takes effect before the
// next frame is sent, so superseded audio never reaches the transport.
type speaker struct {
	conn     transport.Connection
	interval time.Duration
	logger   *slog.Logger
	seq      *audio.Sequencer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSpeaker(conn transport.Connection, interval time.Duration, logger *slog.Logger) *speaker {
	return &speaker{
		conn:     conn,
		interval: interval,
		logger:   logger,
		seq:      audio.NewSequencer(audio.SourceAgent),
	}
}

// Play starts streaming synthesized speech to the caller. It returns
// as soon as playback is running; the stream is closed when playback
// ends or is interrupted.
func (s *speaker) Play(ctx context.Context, stream tts.AudioStream) {
	s.Interrupt()

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.playLoop(pctx, stream, done)
}

// Speaking reports whether a playback is currently running.
func (s *speaker) Speaking() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Interrupt cancels the current playback, if any, and asks the carrier
// to drop audio it has already buffered.
func (s *speaker) Interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Wait blocks until the current playback finishes.
func (s *speaker) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *speaker) playLoop(ctx context.Context, stream tts.AudioStream, done chan struct{}) {
	defer close(done)
	defer stream.Close()

	format := stream.Format()
	if format.Encoding == tts.EncodingMP3 {
		s.logger.Warn("unsupported playback encoding", "encoding", format.Encoding)
		return
	}
	resample := format.SampleRate != 0 && format.SampleRate != audio.SampleRate

	frames := make(chan []byte, 32)
	go func() {
		defer close(frames)
		var chunk audio.Chunker
		var carry []byte
		for {
			data, err := stream.Read()
			if err != nil {
				s.logger.Warn("synthesis stream error", "error", err)
				return
			}
			if data == nil {
				if rest := chunk.Flush(); len(rest) > 0 {
					select {
					case frames <- rest:
					case <-ctx.Done():
					}
				}
				return
			}
			if resample {
				// Resampling works on whole samples; hold back a
				// trailing odd byte until the next chunk.
				if len(carry) > 0 {
					data = append(carry, data...)
					carry = nil
				}
				if len(data)%2 == 1 {
					carry = []byte{data[len(data)-1]}
					data = data[:len(data)-1]
				}
				data = audio.ResampleBytes(data, format.SampleRate, audio.SampleRate)
			}
			for _, payload := range chunk.Push(data) {
				select {
				case frames <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushCarrier()
			return
		case payload, ok := <-frames:
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				s.flushCarrier()
				return
			case <-ticker.C:
			}
			if err := s.conn.Send(s.seq.Stamp(payload)); err != nil {
				s.logger.Debug("playback send failed", "error", err)
				return
			}
		}
	}
}

// flushCarrier drops audio the carrier has buffered but not played.
func (s *speaker) flushCarrier() {
	if fl, ok := s.conn.(transport.Flusher); ok {
		if err := fl.Flush(); err != nil {
			s.logger.Debug("carrier flush failed", "error", err)
		}
	}
}
