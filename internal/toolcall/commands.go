// Package toolcall validates function calls issued by the live model
// and turns them into UI commands.
package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/views"
)

const (
	NameNavigate      = "navigate_to_page"
	NameCheckSymptoms = "check_symptoms"
	NameSelectOption  = "select_option"
	NamePerformAction = "perform_action"
	NameUpdateField   = "update_field"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Call is one function call from the model.
type Call struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Command is a validated call. The set of variants is closed.
type Command interface {
	events() []bus.Event
}

type Navigate struct {
	View views.View
}

type CheckSymptoms struct {
	Symptoms string
}

type SelectOption struct {
	Index *int
	Name  string
}

type PerformAction struct {
	Action bus.Action
}

type UpdateField struct {
	Field string
	Value string
}

func (c Navigate) events() []bus.Event {
	return []bus.Event{bus.Navigate{View: c.View}}
}

// Symptom checks open the assistant first so the analysis has a screen
// to render on.
func (c CheckSymptoms) events() []bus.Event {
	return []bus.Event{
		bus.Navigate{View: views.AIAssistant},
		bus.BeginSymptomAnalysis{Text: c.Symptoms},
	}
}

func (c SelectOption) events() []bus.Event {
	return []bus.Event{bus.Select{Index: c.Index, Name: c.Name}}
}

func (c PerformAction) events() []bus.Event {
	return []bus.Event{bus.PerformAction{Action: c.Action}}
}

func (c UpdateField) events() []bus.Event {
	return []bus.Event{bus.FieldUpdate{Field: c.Field, Value: c.Value}}
}

// Parse validates call against the declared toolset.
func Parse(call Call) (Command, error) {
	switch call.Name {
	case NameNavigate:
		raw, err := requiredString(call.Args, "view")
		if err != nil {
			return nil, err
		}
		v, ok := views.Normalize(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown view %q", ErrInvalidArgs, raw)
		}
		return Navigate{View: v}, nil

	case NameCheckSymptoms:
		s, err := requiredString(call.Args, "symptoms")
		if err != nil {
			return nil, err
		}
		return CheckSymptoms{Symptoms: s}, nil

	case NameSelectOption:
		idx, err := optionalIndex(call.Args, "index")
		if err != nil {
			return nil, err
		}
		name, _ := call.Args["name"].(string)
		name = strings.TrimSpace(name)
		if idx == nil && name == "" {
			return nil, fmt.Errorf("%w: select_option needs index or name", ErrInvalidArgs)
		}
		return SelectOption{Index: idx, Name: name}, nil

	case NamePerformAction:
		raw, err := requiredString(call.Args, "action")
		if err != nil {
			return nil, err
		}
		a, ok := bus.ParseAction(strings.ToUpper(raw))
		if !ok {
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidArgs, raw)
		}
		return PerformAction{Action: a}, nil

	case NameUpdateField:
		field, err := requiredString(call.Args, "field")
		if err != nil {
			return nil, err
		}
		value, ok := call.Args["value"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: value must be a string", ErrInvalidArgs)
		}
		return UpdateField{Field: field, Value: value}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArgs, key)
	}
	return strings.TrimSpace(v), nil
}

func optionalIndex(args map[string]any, key string) (*int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", ErrInvalidArgs, key)
		}
		f = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", ErrInvalidArgs, key)
		}
		f = float64(parsed)
	default:
		return nil, fmt.Errorf("%w: %s is not a number", ErrInvalidArgs, key)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidArgs, key)
	}
	idx := int(f)
	return &idx, nil
}
