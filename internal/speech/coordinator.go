// Package speech owns spoken output (one utterance at a time) and the
// contract for speech recognition engines.
package speech

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

// DefaultWatchdog bounds how long an utterance may go without a
// completion signal before it is treated as finished.
const DefaultWatchdog = 45 * time.Second

// Outcome is how an utterance ended.
type Outcome string

const (
	Completed Outcome = "completed"
	Failed    Outcome = "failed"
	TimedOut  Outcome = "timed_out"
	Cancelled Outcome = "cancelled"
)

// Completes reports whether o counts as a normal end of speech. The
// watchdog firing is treated as one, because some engines never signal.
func Completes(o Outcome) bool {
	return o == Completed || o == TimedOut
}

// Err is the classified error for a timed out utterance, nil otherwise.
func (o Outcome) Err() error {
	switch o {
	case TimedOut:
		return reliability.ErrSynthesisTimeout
	default:
		return nil
	}
}

// Utterance is one synthesis request handed to an engine.
type Utterance struct {
	ID     string
	Text   string
	Locale string
}

// Engine is a platform synthesizer. done is called at most once per
// successful Speak, possibly never.
type Engine interface {
	Speak(u Utterance, done func(err error)) error
	Cancel()
}

// Observer counts utterance outcomes.
type Observer interface {
	ObserveSpeechOutcome(outcome string)
}

type utterance struct {
	id     string
	onDone func(Outcome)
	once   sync.Once
	timer  *time.Timer
}

// Coordinator keeps at most one utterance in flight and guarantees each
// Speak call gets exactly one onDone.
type Coordinator struct {
	mu       sync.Mutex
	engine   Engine
	watchdog time.Duration
	current  *utterance
	logger   *zap.Logger
	observer Observer
}

func NewCoordinator(engine Engine, watchdog time.Duration, logger *zap.Logger) *Coordinator {
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{engine: engine, watchdog: watchdog, logger: logger}
}

func (c *Coordinator) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// Speak cancels whatever is playing and speaks text. A superseded
// utterance receives Cancelled before Speak returns. onDone may be nil.
func (c *Coordinator) Speak(text, locale string, onDone func(Outcome)) {
	clean := StripMarkup(text)
	u := &utterance{id: uuid.NewString(), onDone: onDone}

	c.mu.Lock()
	prev := c.current
	if clean != "" {
		c.current = u
		u.timer = time.AfterFunc(c.watchdog, func() { c.expire(u) })
	} else {
		c.current = nil
	}
	c.mu.Unlock()

	// The engine is silenced before the superseded onDone runs, so a
	// Speak issued from that callback is not cut off.
	if prev != nil {
		c.engine.Cancel()
		c.finish(prev, Cancelled)
	}
	if clean == "" {
		c.finish(u, Completed)
		return
	}
	if !c.isCurrent(u) {
		return
	}

	err := c.engine.Speak(Utterance{ID: u.id, Text: clean, Locale: locale}, func(err error) {
		if err != nil {
			c.logger.Warn("speech engine reported failure", zap.String("utterance_id", u.id), zap.Error(err))
			c.complete(u, Failed)
			return
		}
		c.complete(u, Completed)
	})
	if err != nil {
		c.logger.Warn("speech engine rejected utterance", zap.String("utterance_id", u.id), zap.Error(err))
		c.complete(u, Failed)
	}
}

// Cancel stops the in-flight utterance, if any. Its onDone receives
// Cancelled before Cancel returns.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()

	if prev == nil {
		return
	}
	c.engine.Cancel()
	c.finish(prev, Cancelled)
}

func (c *Coordinator) expire(u *utterance) {
	c.mu.Lock()
	current := c.current == u
	if current {
		c.current = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}
	c.logger.Warn("speech watchdog fired",
		zap.String("utterance_id", u.id),
		zap.Duration("after", c.watchdog),
		zap.Error(TimedOut.Err()),
	)
	c.engine.Cancel()
	c.finish(u, TimedOut)
}

func (c *Coordinator) isCurrent(u *utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == u
}

// Speaking reports whether an utterance is in flight.
func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// complete finishes u and reports whether it was still the current
// utterance.
func (c *Coordinator) complete(u *utterance, outcome Outcome) bool {
	c.mu.Lock()
	current := c.current == u
	if current {
		c.current = nil
	}
	c.mu.Unlock()
	c.finish(u, outcome)
	return current
}

func (c *Coordinator) finish(u *utterance, outcome Outcome) {
	u.once.Do(func() {
		if u.timer != nil {
			u.timer.Stop()
		}
		c.mu.Lock()
		obs := c.observer
		c.mu.Unlock()
		if obs != nil {
			obs.ObserveSpeechOutcome(string(outcome))
		}
		if u.onDone != nil {
			u.onDone(outcome)
		}
	})
}
