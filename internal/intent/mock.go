package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/views"
)

// MockClient classifies with keyword rules so the voice pipeline works
// without any model credentials.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

var (
	affirmatives = map[string]bool{"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "please": true, "confirm": true, "go ahead": true, "yes please": true}
	negatives    = map[string]bool{"no": true, "nope": true, "not now": true, "cancel": true, "no thanks": true, "never mind": true}

	symptomLead   = regexp.MustCompile(`(?i)\b(?:i have|i've got|i am having|i'm having|i feel|suffering from)\s+(?:an?\s+)?(.+)`)
	symptomWords  = regexp.MustCompile(`(?i)\b(pain|hurts?|ache|fever|cough|headache|nausea|dizzy|rash|vomit\w*|sore|bleeding)\b`)
	navigateLead  = regexp.MustCompile(`(?i)^(?:please\s+)?(?:go to|open|show(?: me)?|take me to|navigate to)\s+(?:the\s+)?(.+?)(?:\s+page)?$`)
	identifyWords = regexp.MustCompile(`(?i)\b(identify|scan|recogni[sz]e)\b.*\b(pill|tablet|medicine|capsule)\b|\bpill scanner\b`)
	cartLead      = regexp.MustCompile(`(?i)\badd\s+(.+?)\s+to\s+(?:my\s+)?cart\b`)
	findLead      = regexp.MustCompile(`(?i)\b(?:find|search for|locate|nearest)\s+(?:an?\s+|the\s+)?(.+)`)
)

func (m *MockClient) ParseCommand(ctx context.Context, transcript, language string) (Command, error) {
	select {
	case <-ctx.Done():
		return Command{}, ctx.Err()
	default:
	}

	text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(transcript), ".!?"))
	lower := strings.ToLower(text)
	if lower == "" {
		return Command{}, fmt.Errorf("parse command: %w: empty transcript", reliability.ErrParse)
	}

	switch {
	case affirmatives[lower]:
		return Command{Intent: Confirm, SuggestedResponse: "Okay."}, nil
	case negatives[lower]:
		return Command{Intent: Deny, SuggestedResponse: "No problem. Let me know if you need anything else."}, nil
	case identifyWords.MatchString(text):
		return Command{Intent: IdentifyMedicine}, nil
	}

	if m := cartLead.FindStringSubmatch(text); m != nil {
		return Command{
			Intent:            AddToCart,
			Entities:          Entities{Medicine: m[1]},
			SuggestedResponse: fmt.Sprintf("Let's compare prices for %s before adding it to your cart.", m[1]),
		}, nil
	}
	if m := navigateLead.FindStringSubmatch(text); m != nil {
		if v, ok := views.Normalize(m[1]); ok {
			return Command{Intent: Navigate, Entities: Entities{View: string(v)}}, nil
		}
	}
	if m := symptomLead.FindStringSubmatch(text); m != nil {
		return symptomCommand(m[1]), nil
	}
	if symptomWords.MatchString(text) {
		return symptomCommand(text), nil
	}
	if m := findLead.FindStringSubmatch(text); m != nil {
		return Command{
			Intent:            FindResource,
			Entities:          Entities{Resource: m[1]},
			SuggestedResponse: fmt.Sprintf("You can search for %s in the resource finder.", m[1]),
		}, nil
	}
	return Command{Intent: Unknown, SuggestedResponse: "I'm not sure how to help with that."}, nil
}

func symptomCommand(symptom string) Command {
	return Command{
		Intent:            CheckSymptoms,
		Entities:          Entities{Symptom: strings.TrimSpace(symptom)},
		SuggestedResponse: "Would you like me to find a specialist near you?",
	}
}

type mockRule struct {
	pattern   *regexp.Regexp
	condition Condition
	specialty string
	urgency   string
}

var mockRules = []mockRule{
	{regexp.MustCompile(`(?i)chest`), Condition{"Angina", "Chest pain from reduced blood flow to the heart.", "High"}, "Cardiologist", "Immediate"},
	{regexp.MustCompile(`(?i)head`), Condition{"Tension headache", "Muscle tension causing a dull, band-like pain.", "Low"}, "Neurologist", "General"},
	{regexp.MustCompile(`(?i)fever|cough|cold|throat`), Condition{"Viral infection", "A common viral illness with fever and cough.", "Medium"}, "General Physician", "Soon"},
	{regexp.MustCompile(`(?i)stomach|nausea|vomit`), Condition{"Gastritis", "Inflammation of the stomach lining.", "Medium"}, "Gastroenterologist", "Soon"},
	{regexp.MustCompile(`(?i)rash|itch|skin`), Condition{"Contact dermatitis", "Skin irritation after contact with an allergen.", "Low"}, "Dermatologist", "General"},
}

func (m *MockClient) AnalyzeSymptoms(ctx context.Context, symptoms, language string) (Analysis, error) {
	select {
	case <-ctx.Done():
		return Analysis{}, ctx.Err()
	default:
	}
	if strings.TrimSpace(symptoms) == "" {
		return Analysis{}, fmt.Errorf("analyze symptoms: %w: no symptoms given", reliability.ErrParse)
	}

	rule := mockRule{
		condition: Condition{"General malaise", "A general feeling of being unwell.", "Low"},
		specialty: "General Physician",
		urgency:   "General",
	}
	for _, r := range mockRules {
		if r.pattern.MatchString(symptoms) {
			rule = r
			break
		}
	}
	return Analysis{
		PotentialConditions: []Condition{rule.condition},
		Recommendations:     []Recommendation{{Action: "Consult a " + strings.ToLower(rule.specialty) + ".", Urgency: rule.urgency}},
		ImportantNote:       "This is not a medical diagnosis.",
		SuggestedSpecialty:  rule.specialty,
	}, nil
}
