// Package playback schedules decoded model audio back-to-back on an
// output sink.
package playback

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/audio"
)

// Clock is the output device's monotonic time base.
type Clock interface {
	Now() time.Duration
}

// Sink plays scheduled buffers. Play must not block on playback.
type Sink interface {
	Play(id uint64, buf audio.Frame, at time.Duration) error
	Stop(id uint64)
}

// Observer counts scheduler outcomes.
type Observer interface {
	ObservePlayback(result string)
}

type handle struct {
	id  uint64
	end time.Duration
}

// Scheduler is the playback cursor plus the set of handles that may
// still be sounding. It is safe for concurrent use.
type Scheduler struct {
	mu          sync.Mutex
	clock       Clock
	sink        Sink
	sampleRate  int
	next        time.Duration
	nextID      uint64
	outstanding []handle
	logger      *zap.Logger
	observer    Observer
}

func NewScheduler(clock Clock, sink Sink, sampleRate int, logger *zap.Logger) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{clock: clock, sink: sink, sampleRate: sampleRate, logger: logger}
}

func (s *Scheduler) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Enqueue decodes chunk and schedules it to start at max(now, next).
// A chunk that fails to decode is dropped and leaves the cursor alone.
func (s *Scheduler) Enqueue(chunk []byte) error {
	frame, err := audio.DecodeChunk(chunk, s.sampleRate)
	if err != nil {
		s.observe("decode_error")
		s.logger.Warn("dropping undecodable audio chunk", zap.Int("bytes", len(chunk)), zap.Error(err))
		return err
	}
	if len(frame.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.pruneLocked(now)
	start := s.next
	if start < now {
		start = now
	}
	s.nextID++
	id := s.nextID
	if err := s.sink.Play(id, frame, start); err != nil {
		s.observeLocked("sink_error")
		return fmt.Errorf("schedule playback: %w", err)
	}
	end := start + frame.Duration()
	s.next = end
	s.outstanding = append(s.outstanding, handle{id: id, end: end})
	s.observeLocked("scheduled")
	return nil
}

// CancelAll stops everything scheduled or sounding and resets the
// cursor to now. It is used on barge-in and on session teardown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.outstanding {
		s.sink.Stop(h.id)
	}
	if n := len(s.outstanding); n > 0 {
		s.logger.Debug("playback cancelled", zap.Int("handles", n))
		for i := 0; i < n; i++ {
			s.observeLocked("cancelled")
		}
	}
	s.outstanding = s.outstanding[:0]
	s.next = s.clock.Now()
}

// Outstanding returns the ids of handles that have not finished yet.
func (s *Scheduler) Outstanding() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	out := make([]uint64, len(s.outstanding))
	for i, h := range s.outstanding {
		out[i] = h.id
	}
	return out
}

// Next reports the playback cursor.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) pruneLocked(now time.Duration) {
	kept := s.outstanding[:0]
	for _, h := range s.outstanding {
		if h.end > now {
			kept = append(kept, h)
		}
	}
	s.outstanding = kept
}

func (s *Scheduler) observe(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(result)
}

func (s *Scheduler) observeLocked(result string) {
	if s.observer != nil {
		s.observer.ObservePlayback(result)
	}
}
