package toolcall

import (
	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/bus"
)

const (
	ResultUIUpdated = "ui_updated"
	ResultIgnored   = "ignored"
)

// Ack is the response returned to the model for one call.
type Ack struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Observer counts routed calls by tool and result.
type Observer interface {
	ObserveToolCall(name, result string)
}

// Router turns calls into bus events and acknowledges every one of them.
type Router struct {
	pub      bus.Publisher
	logger   *zap.Logger
	observer Observer
}

func NewRouter(pub bus.Publisher, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{pub: pub, logger: logger}
}

func (r *Router) SetObserver(o Observer) {
	r.observer = o
}

// Handle publishes the events for call and returns its ack. Calls that
// fail validation publish nothing and get a neutral ack.
func (r *Router) Handle(call Call) Ack {
	cmd, err := Parse(call)
	if err != nil {
		r.logger.Warn("ignoring tool call", zap.String("tool", call.Name), zap.String("call_id", call.ID), zap.Error(err))
		r.observe(call.Name, ResultIgnored)
		return ack(call, ResultIgnored)
	}
	for _, evt := range cmd.events() {
		r.pub.Publish(evt)
	}
	r.logger.Debug("tool call routed", zap.String("tool", call.Name), zap.String("call_id", call.ID))
	r.observe(call.Name, ResultUIUpdated)
	return ack(call, ResultUIUpdated)
}

// HandleAll routes calls in order and returns one ack per call, in the
// same order.
func (r *Router) HandleAll(calls []Call) []Ack {
	acks := make([]Ack, 0, len(calls))
	for _, c := range calls {
		acks = append(acks, r.Handle(c))
	}
	return acks
}

func (r *Router) observe(name, result string) {
	if r.observer != nil {
		r.observer.ObserveToolCall(name, result)
	}
}

func ack(call Call, result string) Ack {
	return Ack{ID: call.ID, Name: call.Name, Response: map[string]any{"result": result}}
}
