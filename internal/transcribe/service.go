package transcribe

import (
	"context"

	"github.com/captionforge/captionforge/internal/timeline"
)

// Request is one segment-sized audio window submitted for transcription
type Request struct {
	AudioPath    string
	SampleRate   int
	LanguageHint timeline.Language
}

// Result is the common transcription result from any backend
type Result struct {
	Text             string
	Confidence       float64
	DetectedLanguage timeline.Language
}

// Service is a pluggable speech-to-text backend. Implementations are black
// boxes; the mediator only depends on this contract.
type Service interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
	Name() string
}
