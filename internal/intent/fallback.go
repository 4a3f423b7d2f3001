package intent

import (
	"context"
	"fmt"
)

// FallbackService tries a primary backend first and falls back on
// failure. Cancellation and deadline errors are returned as is.
type FallbackService struct {
	primary  Service
	fallback Service
}

func NewFallbackService(primary, fallback Service) *FallbackService {
	return &FallbackService{primary: primary, fallback: fallback}
}

func (s *FallbackService) Primary() Service   { return s.primary }
func (s *FallbackService) Secondary() Service { return s.fallback }

func (s *FallbackService) ParseCommand(ctx context.Context, transcript, language string) (Command, error) {
	cmd, err := s.primary.ParseCommand(ctx, transcript, language)
	if err == nil || s.fallback == nil || !retryableElsewhere(err) {
		return cmd, err
	}
	fallbackCmd, fallbackErr := s.fallback.ParseCommand(ctx, transcript, language)
	if fallbackErr != nil {
		return Command{}, fmt.Errorf("primary intent error: %w; fallback intent error: %v", err, fallbackErr)
	}
	return fallbackCmd, nil
}

func (s *FallbackService) AnalyzeSymptoms(ctx context.Context, symptoms, language string) (Analysis, error) {
	a, err := s.primary.AnalyzeSymptoms(ctx, symptoms, language)
	if err == nil || s.fallback == nil || !retryableElsewhere(err) {
		return a, err
	}
	fallbackA, fallbackErr := s.fallback.AnalyzeSymptoms(ctx, symptoms, language)
	if fallbackErr != nil {
		return Analysis{}, fmt.Errorf("primary analysis error: %w; fallback analysis error: %v", err, fallbackErr)
	}
	return fallbackA, nil
}
