// Package capture turns a live microphone stream into fixed-size PCM16
// frames ready for the duplex session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/audio"
	"github.com/ent0n29/healthpilot/internal/reliability"
)

const DefaultFrameSamples = 2048

// Device opens a microphone stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers raw microphone samples until it is closed.
type Stream interface {
	Samples() <-chan []int16
	SampleRate() int
	Close() error
}

// Encoded is one outbound frame.
type Encoded struct {
	Data     []byte
	MIMEType string
	Level    float64
}

// Sink receives encoded frames.
type Sink func(Encoded)

type Config struct {
	SampleRate   int
	FrameSamples int
	// OnLevel, when set, gets the RMS of every frame for UI metering.
	OnLevel func(float64)
}

// Encoder starts capture handles on a device.
type Encoder struct {
	device Device
	cfg    Config
	logger *zap.Logger
}

func NewEncoder(device Device, cfg Config, logger *zap.Logger) *Encoder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{device: device, cfg: cfg, logger: logger}
}

// Start opens the device and begins framing. Frames are dropped until a
// sink is attached.
func (e *Encoder) Start(ctx context.Context) (*Handle, error) {
	if e.device == nil {
		return nil, fmt.Errorf("start capture: %w", reliability.ErrDeviceUnavailable)
	}
	stream, err := e.device.Open(ctx)
	if err != nil {
		if errors.Is(err, reliability.ErrPermissionDenied) || errors.Is(err, reliability.ErrDeviceUnavailable) {
			return nil, fmt.Errorf("start capture: %w", err)
		}
		return nil, fmt.Errorf("start capture: %w: %v", reliability.ErrDeviceUnavailable, err)
	}

	h := &Handle{
		stream: stream,
		cfg:    e.cfg,
		logger: e.logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run()
	return h, nil
}

// Stop releases h. It is safe on a nil or already stopped handle.
func (e *Encoder) Stop(h *Handle) {
	if h != nil {
		h.Stop()
	}
}

// Handle is one running capture. It is exclusively owned by whoever
// started it.
type Handle struct {
	stream Stream
	cfg    Config
	logger *zap.Logger

	sinkMu sync.RWMutex
	sink   Sink

	level   atomic.Uint64
	frames  atomic.Uint64
	dropped atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Attach routes subsequent frames to sink.
func (h *Handle) Attach(sink Sink) {
	h.sinkMu.Lock()
	h.sink = sink
	h.sinkMu.Unlock()
}

// Detach stops routing frames; they are dropped from now on.
func (h *Handle) Detach() {
	h.Attach(nil)
}

// Level is the RMS of the most recent frame.
func (h *Handle) Level() float64 {
	return math.Float64frombits(h.level.Load())
}

// Stats reports emitted and dropped frame counts.
func (h *Handle) Stats() (frames, dropped uint64) {
	return h.frames.Load(), h.dropped.Load()
}

// Done is closed after the framing goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop halts framing and releases the device. After Stop returns no
// further frame reaches any sink.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		<-h.done
		if err := h.stream.Close(); err != nil {
			h.logger.Debug("capture stream close failed", zap.Error(err))
		}
	})
}

func (h *Handle) run() {
	defer close(h.done)

	src := h.stream.SampleRate()
	if src <= 0 {
		src = h.cfg.SampleRate
	}
	pending := make([]int16, 0, h.cfg.FrameSamples*2)
	samples := h.stream.Samples()
	for {
		select {
		case <-h.stopCh:
			return
		case block, ok := <-samples:
			if !ok {
				return
			}
			if src != h.cfg.SampleRate {
				block = audio.Resample(block, src, h.cfg.SampleRate)
			}
			pending = append(pending, block...)
			for len(pending) >= h.cfg.FrameSamples {
				select {
				case <-h.stopCh:
					return
				default:
				}
				frame := make([]int16, h.cfg.FrameSamples)
				copy(frame, pending[:h.cfg.FrameSamples])
				pending = append(pending[:0], pending[h.cfg.FrameSamples:]...)
				h.emit(frame)
			}
		}
	}
}

func (h *Handle) emit(frame []int16) {
	level := audio.RMS(frame)
	h.level.Store(math.Float64bits(level))
	if h.cfg.OnLevel != nil {
		h.cfg.OnLevel(level)
	}

	h.sinkMu.RLock()
	defer h.sinkMu.RUnlock()
	if h.sink == nil {
		h.dropped.Add(1)
		return
	}
	h.frames.Add(1)
	h.sink(Encoded{
		Data:     audio.EncodePCM16LE(frame),
		MIMEType: audio.MIMEType(h.cfg.SampleRate),
		Level:    level,
	})
}
