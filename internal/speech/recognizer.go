package speech

import "context"

// RecognitionConfig configures one recognition cycle.
type RecognitionConfig struct {
	Locale         string
	Continuous     bool
	InterimResults bool
}

// RecognitionEventKind labels recognizer callbacks.
type RecognitionEventKind string

const (
	RecognitionResult RecognitionEventKind = "result"
	RecognitionEnd    RecognitionEventKind = "end"
	RecognitionError  RecognitionEventKind = "error"
)

// RecognitionEvent is one callback from a running recognition. End is
// delivered last, including after an error.
type RecognitionEvent struct {
	Kind  RecognitionEventKind
	Text  string
	Final bool
	Err   error
}

// Recognition is a running cycle.
type Recognition interface {
	Stop()
}

// Recognizer starts recognition cycles on the platform engine.
type Recognizer interface {
	Start(ctx context.Context, cfg RecognitionConfig, onEvent func(RecognitionEvent)) (Recognition, error)
}
