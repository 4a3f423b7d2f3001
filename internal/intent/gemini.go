package intent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/views"
)

const (
	DefaultCommandModel  = "gemini-3-flash-preview"
	DefaultAnalysisModel = "gemini-3-pro-preview"
)

// generator is the slice of the genai client used here.
type generator interface {
	generate(ctx context.Context, model, prompt, system string, schema *genai.Schema) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
}

func (g genaiGenerator) generate(ctx context.Context, model, prompt, system string, schema *genai.Schema) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GeminiClient parses commands and analyzes symptoms with Gemini models
// constrained to JSON responses.
type GeminiClient struct {
	gen           generator
	commandModel  string
	analysisModel string
}

func NewGeminiClient(ctx context.Context, apiKey, commandModel, analysisModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiClient(genaiGenerator{client: client}, commandModel, analysisModel), nil
}

func newGeminiClient(gen generator, commandModel, analysisModel string) *GeminiClient {
	if strings.TrimSpace(commandModel) == "" {
		commandModel = DefaultCommandModel
	}
	if strings.TrimSpace(analysisModel) == "" {
		analysisModel = DefaultAnalysisModel
	}
	return &GeminiClient{gen: gen, commandModel: commandModel, analysisModel: analysisModel}
}

func (c *GeminiClient) ParseCommand(ctx context.Context, transcript, language string) (Command, error) {
	prompt := fmt.Sprintf("Intent: %q. Lang: %s.", transcript, language)
	system := "Map input to intents. Views: " + strings.Join(views.Strings(), ", ") + "."
	text, err := c.gen.generate(ctx, c.commandModel, prompt, system, commandSchema())
	if err != nil {
		return Command{}, fmt.Errorf("parse command: %w: %v", reliability.ErrParse, err)
	}
	cmd, err := decodeCommand(text)
	if err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}

func (c *GeminiClient) AnalyzeSymptoms(ctx context.Context, symptoms, language string) (Analysis, error) {
	prompt := fmt.Sprintf("Analyze symptoms: %q. Respond in %s.", symptoms, language)
	system := fmt.Sprintf(`You are a clinical diagnostic assistant.
Keep 'severity' values exactly as: 'Low', 'Medium', 'High', or 'Critical'.
Keep 'urgency' values exactly as: 'Immediate', 'Soon', or 'General'.
Translate names and descriptions into %s.
Output ONLY valid JSON.`, language)
	text, err := c.gen.generate(ctx, c.analysisModel, prompt, system, analysisSchema())
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze symptoms: %w: %v", reliability.ErrParse, err)
	}
	a, err := decodeAnalysis(text)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze symptoms: %w", err)
	}
	return a, nil
}

func commandSchema() *genai.Schema {
	intents := make([]string, len(allIntents))
	for i, in := range allIntents {
		intents[i] = string(in)
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intent": {Type: genai.TypeString, Enum: intents},
			"entities": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"symptom":  {Type: genai.TypeString},
					"resource": {Type: genai.TypeString},
					"medicine": {Type: genai.TypeString},
					"view":     {Type: genai.TypeString},
				},
			},
			"autonomousAction": {Type: genai.TypeString},
		},
		Required: []string{"intent", "entities", "autonomousAction"},
	}
}

func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"potentialConditions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
						"severity":    {Type: genai.TypeString, Enum: []string{"Low", "Medium", "High", "Critical"}},
					},
					Required: []string{"name", "description", "severity"},
				},
			},
			"recommendations": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"action":  {Type: genai.TypeString},
						"urgency": {Type: genai.TypeString, Enum: []string{"Immediate", "Soon", "General"}},
					},
					Required: []string{"action", "urgency"},
				},
			},
			"importantNote":      {Type: genai.TypeString},
			"suggestedSpecialty": {Type: genai.TypeString},
		},
		Required: []string{"potentialConditions", "recommendations", "importantNote", "suggestedSpecialty"},
	}
}
