package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/captionforge/captionforge/internal/timeline"
)

// whisperCLI shells out to a whisper command-line wrapper that prints a
// JSON result on stdout: {"text": ..., "confidence": ..., "language": ...}.
type whisperCLI struct {
	binaryPath string
	model      string
}

// NewWhisperCLI creates the exec-based whisper backend
func NewWhisperCLI(binaryPath, model string) Service {
	return &whisperCLI{binaryPath: binaryPath, model: model}
}

func (w *whisperCLI) Name() string {
	return "whisper-cli"
}

type whisperOut struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

func (w *whisperCLI) Transcribe(ctx context.Context, req Request) (Result, error) {
	args := []string{
		"--audio", req.AudioPath,
		"--model", w.model,
		"--sample-rate", strconv.Itoa(req.SampleRate),
		"--output-json",
	}

	// Mixed mode asks the model to auto-detect; the Hindi hint requests
	// romanized output rather than Devanagari.
	switch req.LanguageHint {
	case timeline.LanguageMixed:
		args = append(args, "--language", "auto")
	case timeline.LanguageHindiRomanized:
		args = append(args, "--language", "hi", "--romanize")
	default:
		args = append(args, "--language", "en")
	}

	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return Result{}, fmt.Errorf("whisper failed: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return Result{}, fmt.Errorf("failed to run whisper: %w", err)
	}

	var parsed whisperOut
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	return Result{
		Text:             strings.TrimSpace(parsed.Text),
		Confidence:       parsed.Confidence,
		DetectedLanguage: mapDetectedLanguage(parsed.Language),
	}, nil
}

// mapDetectedLanguage maps the model's language code onto the segment
// language enumeration; unknown codes are dropped rather than guessed
func mapDetectedLanguage(code string) timeline.Language {
	switch strings.ToLower(code) {
	case "en", "english":
		return timeline.LanguageEnglish
	case "hi", "hindi":
		return timeline.LanguageHindiRomanized
	}
	return ""
}
