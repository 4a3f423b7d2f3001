package toolcall

import (
	"fmt"
	"strings"

	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/views"
)

// Schema is a transport-neutral JSON schema subset for tool parameters.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Declaration describes one tool to the live model.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Declarations is the full toolset exposed to the live model.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        NameNavigate,
			Description: "Open one of the application screens.",
			Parameters: Schema{
				Type:       "object",
				Properties: map[string]Schema{"view": {Type: "string", Description: "Screen identifier.", Enum: views.Strings()}},
				Required:   []string{"view"},
			},
		},
		{
			Name:        NameCheckSymptoms,
			Description: "Open the AI assistant and start analyzing the described symptoms.",
			Parameters: Schema{
				Type:       "object",
				Properties: map[string]Schema{"symptoms": {Type: "string"}},
				Required:   []string{"symptoms"},
			},
		},
		{
			Name:        NameSelectOption,
			Description: "Choose an item from the list on screen by position or name.",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Schema{
					"index": {Type: "number", Description: "Zero-based position."},
					"name":  {Type: "string"},
				},
			},
		},
		{
			Name:        NamePerformAction,
			Description: "Run a screen action.",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Schema{"action": {Type: "string", Enum: []string{
					string(bus.ActionBookAppointment),
					string(bus.ActionGoBack),
					string(bus.ActionSubmitForm),
					string(bus.ActionIdentifyMedicine),
				}}},
				Required: []string{"action"},
			},
		},
		{
			Name:        NameUpdateField,
			Description: "Fill a form field such as symptoms, medicine or location.",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Schema{
					"field": {Type: "string"},
					"value": {Type: "string"},
				},
				Required: []string{"field", "value"},
			},
		},
	}
}

// DefaultInstruction is the persona the live model runs with.
func DefaultInstruction(language string) string {
	if strings.TrimSpace(language) == "" {
		language = "English"
	}
	quoted := make([]string, 0, len(views.All()))
	for _, v := range views.Strings() {
		quoted = append(quoted, "'"+v+"'")
	}
	return fmt.Sprintf(`You are the MedFinder "Health Pilot". You control the app's UI for the user.
Language: %s.

YOUR PROTOCOLS:
1. SYMPTOMS: If the user says "I have X" or "My Y hurts", use 'check_symptoms'. This opens the AI assistant and starts analysis immediately.
2. NAVIGATION: Use 'navigate_to_page' for general navigation.
3. SELECTION: If the user says "choose the first one" or "select Apollo", use 'select_option' with index or name.
4. ACTIONS: Use 'perform_action' for 'BOOK_APPOINTMENT', 'GO_BACK', 'SUBMIT_FORM' and 'IDENTIFY_MEDICINE'.
5. FORMS: Use 'update_field' to fill the symptoms, medicine or location fields.

VIEWS: %s.

Be decisive. Use tools before or during your spoken answer so the UI updates instantly.`, language, strings.Join(quoted, ", "))
}
