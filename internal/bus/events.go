// Package bus carries UI commands from the voice pipeline to whatever
// renders the application.
package bus

import "github.com/ent0n29/healthpilot/internal/views"

// Event is one UI command. The set of variants is closed.
type Event interface {
	isEvent()
}

// Action names a discrete UI operation.
type Action string

const (
	ActionBookAppointment  Action = "BOOK_APPOINTMENT"
	ActionGoBack           Action = "GO_BACK"
	ActionSubmitForm       Action = "SUBMIT_FORM"
	ActionIdentifyMedicine Action = "IDENTIFY_MEDICINE"
)

// ParseAction accepts only the known actions.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionBookAppointment, ActionGoBack, ActionSubmitForm, ActionIdentifyMedicine:
		return a, true
	default:
		return "", false
	}
}

// Navigate switches the visible screen.
type Navigate struct {
	View views.View `json:"view"`
}

// FieldUpdate fills or replaces the text of a named form field.
type FieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Select picks a list entry by position, by name, or both.
type Select struct {
	Index *int   `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

// PerformAction asks the UI to run one of the fixed actions.
type PerformAction struct {
	Action Action `json:"action"`
}

// BeginSymptomAnalysis starts the symptom flow on the assistant screen.
type BeginSymptomAnalysis struct {
	Text string `json:"text"`
}

// Notice is a transient status message for the user.
type Notice struct {
	Text string `json:"text"`
}

func (Navigate) isEvent()             {}
func (FieldUpdate) isEvent()          {}
func (Select) isEvent()               {}
func (PerformAction) isEvent()        {}
func (BeginSymptomAnalysis) isEvent() {}
func (Notice) isEvent()               {}

// Kind returns the stable wire name of evt.
func Kind(evt Event) string {
	switch evt.(type) {
	case Navigate:
		return "navigate"
	case FieldUpdate:
		return "field_update"
	case Select:
		return "select"
	case PerformAction:
		return "action"
	case BeginSymptomAnalysis:
		return "begin_symptom_analysis"
	case Notice:
		return "notice"
	default:
		return "unknown"
	}
}
