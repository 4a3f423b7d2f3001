package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

// decodeJSON parses model output leniently: code fences are stripped and
// if the text still does not parse, the outermost {...} span is tried.
func decodeJSON(text string, out any) error {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "```", ""))
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", reliability.ErrParse)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("%w: no json object in response", reliability.ErrParse)
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", reliability.ErrParse, err)
	}
	return nil
}

func decodeCommand(text string) (Command, error) {
	var raw struct {
		Intent            string   `json:"intent"`
		Entities          Entities `json:"entities"`
		SuggestedResponse string   `json:"autonomousAction"`
	}
	if err := decodeJSON(text, &raw); err != nil {
		return Command{}, err
	}
	return Command{
		Intent: ParseIntent(raw.Intent),
		Entities: Entities{
			Symptom:  strings.TrimSpace(raw.Entities.Symptom),
			Resource: strings.TrimSpace(raw.Entities.Resource),
			Medicine: strings.TrimSpace(raw.Entities.Medicine),
			View:     strings.TrimSpace(raw.Entities.View),
		},
		SuggestedResponse: strings.TrimSpace(raw.SuggestedResponse),
	}, nil
}

func decodeAnalysis(text string) (Analysis, error) {
	var a Analysis
	if err := decodeJSON(text, &a); err != nil {
		return Analysis{}, err
	}
	if a.TopCondition() == "" {
		return Analysis{}, fmt.Errorf("%w: analysis lists no conditions", reliability.ErrParse)
	}
	return a, nil
}
