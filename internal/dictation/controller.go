// Package dictation fills a form field from speech. It shares the
// microphone with the live session through the device arbiter and
// silences the voice command machine while it runs.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/device"
	"github.com/ent0n29/healthpilot/internal/speech"
)

var ErrNoField = errors.New("dictation field is required")

// Gate is the command pipeline that must stay quiet during dictation.
type Gate interface {
	SetDictating(on bool)
}

// Silencer stops speech output.
type Silencer interface {
	Cancel()
}

type DeviceArbiter interface {
	Acquire(owner device.Owner, release func())
	Release(owner device.Owner)
}

type Deps struct {
	Recognizer speech.Recognizer
	Speaker    Silencer
	Gate       Gate
	Arbiter    DeviceArbiter
	Bus        bus.Publisher
	Logger     *zap.Logger
}

// Status reports the running dictation, if any.
type Status struct {
	Active bool   `json:"active"`
	Field  string `json:"field,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Controller runs at most one dictation at a time.
type Controller struct {
	deps Deps

	mu     sync.Mutex
	gen    uint64
	rec    speech.Recognition
	field  string
	text   string
	active bool
}

func NewController(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{deps: deps}
}

// Start begins dictating into field. Speech is cut off and the live
// session, if any, gives up the microphone before recognition starts.
func (c *Controller) Start(ctx context.Context, field, locale string) error {
	field = strings.TrimSpace(field)
	if field == "" {
		return ErrNoField
	}
	if c.deps.Recognizer == nil {
		return fmt.Errorf("start dictation: no recognizer configured")
	}
	c.Stop()

	if c.deps.Speaker != nil {
		c.deps.Speaker.Cancel()
	}
	if c.deps.Arbiter != nil {
		c.deps.Arbiter.Acquire(device.OwnerDictation, c.Stop)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.field, c.text, c.active = field, "", true
	c.mu.Unlock()
	if c.deps.Gate != nil {
		c.deps.Gate.SetDictating(true)
	}

	rec, err := c.deps.Recognizer.Start(ctx, speech.RecognitionConfig{
		Locale:         locale,
		Continuous:     false,
		InterimResults: true,
	}, func(evt speech.RecognitionEvent) { c.onEvent(gen, evt) })
	if err != nil {
		c.finish(gen)
		return fmt.Errorf("start dictation: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		rec.Stop()
		return nil
	}
	c.rec = rec
	c.mu.Unlock()
	c.deps.Logger.Debug("dictation started", zap.String("field", field))
	return nil
}

// Stop ends dictation and gives the microphone back. It is a no-op when
// nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.finish(gen)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Active: c.active, Field: c.field, Text: c.text}
}

func (c *Controller) onEvent(gen uint64, evt speech.RecognitionEvent) {
	switch evt.Kind {
	case speech.RecognitionResult:
		c.mu.Lock()
		if c.gen != gen || !c.active {
			c.mu.Unlock()
			return
		}
		field := c.field
		c.text = evt.Text
		c.mu.Unlock()
		if c.deps.Bus != nil {
			c.deps.Bus.Publish(bus.FieldUpdate{Field: field, Value: evt.Text})
		}
	case speech.RecognitionError:
		c.deps.Logger.Warn("dictation recognition failed", zap.Error(evt.Err))
		c.finish(gen)
	case speech.RecognitionEnd:
		c.finish(gen)
	}
}

// finish tears down generation gen if it is still the running one.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.active {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.active = false
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	if c.deps.Gate != nil {
		c.deps.Gate.SetDictating(false)
	}
	if c.deps.Arbiter != nil {
		c.deps.Arbiter.Release(device.OwnerDictation)
	}
}
