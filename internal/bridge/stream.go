package bridge

import (
	"sync"

	"github.com/ent0n29/healthpilot/internal/protocol"
)

// micStream is the capture side of one Open call. Samples stays open
// until the stream is closed, fails or the link goes away.
type micStream struct {
	bridge *Bridge
	rate   int

	readyOnce sync.Once
	readyCh   chan error

	mu     sync.Mutex
	ch     chan []int16
	closed bool
}

func newMicStream(b *Bridge, rate int) *micStream {
	return &micStream{
		bridge:  b,
		rate:    rate,
		readyCh: make(chan error, 1),
		ch:      make(chan []int16, micBuffer),
	}
}

func (s *micStream) Samples() <-chan []int16 { return s.ch }

func (s *micStream) SampleRate() int { return s.rate }

func (s *micStream) Close() error {
	s.bridge.releaseMic(s)
	return nil
}

func (s *micStream) ready() {
	s.readyOnce.Do(func() { s.readyCh <- nil })
}

// fail settles a pending Open with err and ends the sample stream.
func (s *micStream) fail(err error) {
	s.readyOnce.Do(func() { s.readyCh <- err })
	s.shutdown()
}

func (s *micStream) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver hands samples to the reader, dropping them if it lags.
func (s *micStream) deliver(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- samples:
	default:
	}
}

func messageType(v any) protocol.MessageType {
	switch m := v.(type) {
	case protocol.CaptureStart:
		return m.Type
	case protocol.CaptureStop:
		return m.Type
	case protocol.PlaybackChunk:
		return m.Type
	case protocol.PlaybackStop:
		return m.Type
	case protocol.SpeechStart:
		return m.Type
	case protocol.SpeechCancel:
		return m.Type
	case protocol.RecognitionStart:
		return m.Type
	case protocol.RecognitionStop:
		return m.Type
	case protocol.CommandEvent:
		return m.Type
	case protocol.TranscriptDelta:
		return m.Type
	case protocol.AudioLevel:
		return m.Type
	case protocol.SystemEvent:
		return m.Type
	case protocol.ErrorEvent:
		return m.Type
	default:
		return "unknown"
	}
}
