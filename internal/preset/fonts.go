package preset

import (
	"os"
	"path/filepath"
)

// FontResolver maps a preset's logical font reference to a usable font
// file. Resolution failures fall back to the configured system default so
// a missing custom font never fails a render.
type FontResolver struct {
	dir         string
	defaultFont string
}

// NewFontResolver creates a resolver over a fonts directory
func NewFontResolver(dir, defaultFont string) *FontResolver {
	return &FontResolver{dir: dir, defaultFont: defaultFont}
}

// Resolve returns the font file path for a logical reference. fallback is
// true when the reference could not be resolved and the default font was
// substituted.
func (r *FontResolver) Resolve(fontRef string) (path string, fallback bool) {
	if fontRef == "" {
		return r.defaultFont, false
	}

	// Direct path reference
	if filepath.IsAbs(fontRef) {
		if fileExists(fontRef) {
			return fontRef, false
		}
		return r.defaultFont, true
	}

	for _, ext := range []string{"", ".ttf", ".otf"} {
		candidate := filepath.Join(r.dir, fontRef+ext)
		if fileExists(candidate) {
			return candidate, false
		}
	}
	return r.defaultFont, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
