package timeline

import "fmt"

// Language identifies the caption language mode of a segment
type Language string

// Language constants
const (
	LanguageEnglish        Language = "en"
	LanguageHindiRomanized Language = "hi-rom"
	LanguageMixed          Language = "mixed"
)

// ParseLanguage validates a language tag
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguageEnglish, LanguageHindiRomanized, LanguageMixed:
		return Language(s), nil
	case "":
		return LanguageEnglish, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// Segment is one fixed-duration slice of the video timeline that may
// carry a caption.
type Segment struct {
	Start         float64
	End           float64
	Text          string
	PresetID      string
	Language      Language
	AutoGenerated bool
	Confidence    *float64

	// generation increments on every mutation. It is runtime state used to
	// detect stale asynchronous transcription results and is never
	// serialized.
	generation uint64
}

// Generation returns the segment's current generation token
func (s *Segment) Generation() uint64 {
	return s.generation
}

// Duration returns the segment length in seconds
func (s *Segment) Duration() float64 {
	return s.End - s.Start
}

// Contains reports whether timeSec falls within [Start, End)
func (s *Segment) Contains(timeSec float64) bool {
	return timeSec >= s.Start && timeSec < s.End
}

// Overlaps reports whether the segment's range intersects [start, end)
func (s *Segment) Overlaps(start, end float64) bool {
	return start < s.End && end > s.Start
}

// NeedsReview reports whether an auto-generated caption fell below the
// low-confidence threshold. Derived view state, not persisted.
func (s *Segment) NeedsReview(threshold float64) bool {
	return s.AutoGenerated && s.Confidence != nil && *s.Confidence < threshold
}
