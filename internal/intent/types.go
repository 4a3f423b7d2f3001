// Package intent talks to the services that classify voice transcripts
// and analyze described symptoms.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Intent is the parser's classification of one utterance.
type Intent string

const (
	CheckSymptoms    Intent = "CHECK_SYMPTOMS"
	FindResource     Intent = "FIND_RESOURCE"
	Navigate         Intent = "NAVIGATE"
	AddToCart        Intent = "ADD_TO_CART"
	IdentifyMedicine Intent = "IDENTIFY_MEDICINE"
	Confirm          Intent = "CONFIRM"
	Deny             Intent = "DENY"
	Unknown          Intent = "UNKNOWN"
)

var allIntents = []Intent{CheckSymptoms, FindResource, Navigate, AddToCart, IdentifyMedicine, Confirm, Deny, Unknown}

// ParseIntent maps raw text to a known intent, defaulting to Unknown.
func ParseIntent(raw string) Intent {
	up := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	for _, i := range allIntents {
		if i == up {
			return i
		}
	}
	return Unknown
}

// Entities are the slots a parser may fill.
type Entities struct {
	Symptom  string `json:"symptom,omitempty"`
	Resource string `json:"resource,omitempty"`
	Medicine string `json:"medicine,omitempty"`
	View     string `json:"view,omitempty"`
}

// Command is a parsed utterance.
type Command struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
	// SuggestedResponse is the parser's own proposal for what to say next.
	SuggestedResponse string `json:"autonomousAction"`
}

type Condition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type Recommendation struct {
	Action  string `json:"action"`
	Urgency string `json:"urgency"`
}

// Analysis is the result of a symptom analysis.
type Analysis struct {
	PotentialConditions []Condition      `json:"potentialConditions"`
	Recommendations     []Recommendation `json:"recommendations"`
	ImportantNote       string           `json:"importantNote"`
	SuggestedSpecialty  string           `json:"suggestedSpecialty"`
}

// TopCondition returns the first listed condition name.
func (a Analysis) TopCondition() string {
	if len(a.PotentialConditions) == 0 {
		return ""
	}
	return strings.TrimSpace(a.PotentialConditions[0].Name)
}

type Parser interface {
	ParseCommand(ctx context.Context, transcript, language string) (Command, error)
}

type Analyzer interface {
	AnalyzeSymptoms(ctx context.Context, symptoms, language string) (Analysis, error)
}

// Service is both halves, as every backend implements them together.
type Service interface {
	Parser
	Analyzer
}

// Config controls service construction.
type Config struct {
	Mode          string
	APIKey        string
	HTTPURL       string
	CommandModel  string
	AnalysisModel string
	HTTPTimeout   time.Duration
}

// New builds the service for cfg.Mode.
func New(ctx context.Context, cfg Config) (Service, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoService(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("gemini api key is required for gemini intent mode")
		}
		return NewGeminiClient(ctx, cfg.APIKey, cfg.CommandModel, cfg.AnalysisModel)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("intent HTTP url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.HTTPTimeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported intent mode %q", cfg.Mode)
	}
}

func newAutoService(ctx context.Context, cfg Config) (Service, error) {
	var secondary Service
	if url := strings.TrimSpace(cfg.HTTPURL); url != "" {
		secondary = NewHTTPClient(url, cfg.HTTPTimeout)
	}

	if strings.TrimSpace(cfg.APIKey) != "" {
		gemini, err := NewGeminiClient(ctx, cfg.APIKey, cfg.CommandModel, cfg.AnalysisModel)
		if err != nil {
			return nil, err
		}
		if secondary != nil {
			return NewFallbackService(gemini, secondary), nil
		}
		return gemini, nil
	}
	if secondary != nil {
		return secondary, nil
	}
	return NewMockClient(), nil
}
