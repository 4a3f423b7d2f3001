package live

import (
	"strings"
	"sync"
)

// Transcripts accumulates the incremental transcription of both sides
// in arrival order.
type Transcripts struct {
	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
}

func (t *Transcripts) AppendInput(fragment string) {
	t.mu.Lock()
	t.input.WriteString(fragment)
	t.mu.Unlock()
}

func (t *Transcripts) AppendOutput(fragment string) {
	t.mu.Lock()
	t.output.WriteString(fragment)
	t.mu.Unlock()
}

// Snapshot returns the accumulated input and output text.
func (t *Transcripts) Snapshot() (input, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input.String(), t.output.String()
}

func (t *Transcripts) Reset() {
	t.mu.Lock()
	t.input.Reset()
	t.output.Reset()
	t.mu.Unlock()
}
