package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/captionforge/captionforge/internal/timeline"
)

func TestMapDetectedLanguage(t *testing.T) {
	assert.Equal(t, timeline.LanguageEnglish, mapDetectedLanguage("en"))
	assert.Equal(t, timeline.LanguageEnglish, mapDetectedLanguage("English"))
	assert.Equal(t, timeline.LanguageHindiRomanized, mapDetectedLanguage("hi"))
	assert.Equal(t, timeline.LanguageHindiRomanized, mapDetectedLanguage("Hindi"))
	assert.Equal(t, timeline.Language(""), mapDetectedLanguage("fr"))
	assert.Equal(t, timeline.Language(""), mapDetectedLanguage(""))
}
