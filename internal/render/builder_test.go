package render

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/timeline"
)

func newTestBuilder(t *testing.T) (*Builder, *preset.Store) {
	t.Helper()
	store := preset.NewStore(filepath.Join(t.TempDir(), "presets.json"))
	fonts := preset.NewFontResolver(t.TempDir(), "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf")
	return NewBuilder(store, fonts), store
}

func TestBuild(t *testing.T) {
	src := Geometry{Width: 1920, Height: 1080}
	dst := Geometry{Width: 1920, Height: 1080}

	t.Run("EmptyTimeline", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		instructions, warnings := b.Build(nil, src, dst, ScaleContain)
		assert.Empty(t, instructions)
		assert.Empty(t, warnings)
	})

	t.Run("SkipsEmptyText", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{
			{Start: 0, End: 5, Text: "first"},
			{Start: 5, End: 10, Text: ""},
			{Start: 10, End: 15, Text: "third"},
		}

		instructions, _ := b.Build(snapshot, src, dst, ScaleContain)
		require.Len(t, instructions, 2)
		assert.Equal(t, "first", instructions[0].Text)
		assert.Equal(t, "third", instructions[1].Text)
	})

	t.Run("TimeOrdered", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{
			{Start: 10, End: 15, Text: "later"},
			{Start: 0, End: 5, Text: "earlier"},
		}

		instructions, _ := b.Build(snapshot, src, dst, ScaleContain)
		require.Len(t, instructions, 2)
		assert.Equal(t, 0.0, instructions[0].StartSec)
		assert.Equal(t, 10.0, instructions[1].StartSec)
	})

	t.Run("DanglingPresetFallsBackToDefault", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{
			{Start: 0, End: 5, Text: "hello", PresetID: "no-such-preset"},
		}

		instructions, warnings := b.Build(snapshot, src, dst, ScaleContain)
		require.Len(t, instructions, 1)
		assert.Empty(t, warnings)
		assert.Equal(t, preset.DefaultPreset().SizePt, instructions[0].SizePt)
		assert.False(t, instructions[0].FontFallback)
	})

	t.Run("MissingFontWarnsAndFallsBack", func(t *testing.T) {
		b, store := newTestBuilder(t)
		styledID, err := store.Create(preset.Preset{
			Name:      "Fancy",
			FontRef:   "NoSuchFont",
			SizePt:    48,
			Color:     preset.RGBA{R: 255, G: 255, B: 255, A: 255},
			Position:  preset.Position{Anchor: preset.AnchorTop, OffsetYPct: 5},
			Animation: preset.Animation{Kind: preset.AnimationNone},
		})
		require.NoError(t, err)

		snapshot := []timeline.Segment{
			{Start: 0, End: 5, Text: "hello", PresetID: styledID},
		}

		instructions, warnings := b.Build(snapshot, src, dst, ScaleContain)
		require.Len(t, instructions, 1)
		require.Len(t, warnings, 1)
		assert.Equal(t, 0.0, warnings[0].SegmentStart)
		assert.True(t, instructions[0].FontFallback)
		assert.NotEmpty(t, instructions[0].FontPath)
	})

	t.Run("BottomAnchorGeometry", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{{Start: 0, End: 5, Text: "hi"}}

		// Default preset: bottom anchor, 8% offset, 36pt
		instructions, _ := b.Build(snapshot, src, dst, ScaleContain)
		require.Len(t, instructions, 1)

		rect := instructions[0].Dest
		assert.Equal(t, 1728, rect.W) // 90% of 1080p width
		assert.Equal(t, 54, rect.H)   // 36pt * 1.5
		assert.Equal(t, (1920-1728)/2, rect.X)
		// 8% of 1080 = 86 up from the bottom, minus box height
		assert.Equal(t, 1080-86-54, rect.Y)
	})

	t.Run("AnchorsWithinDisplayedFrame", func(t *testing.T) {
		// Landscape source letterboxed into a portrait target: the
		// caption must sit above the bottom bar
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{{Start: 0, End: 5, Text: "hi"}}

		portrait := Geometry{Width: 1080, Height: 1920}
		instructions, _ := b.Build(snapshot, src, portrait, ScaleContain)
		require.Len(t, instructions, 1)

		displayed := FitRect(src, portrait, ScaleContain)
		rect := instructions[0].Dest
		assert.GreaterOrEqual(t, rect.Y, displayed.Y)
		assert.LessOrEqual(t, rect.Y+rect.H, displayed.Y+displayed.H)
	})

	t.Run("MinimumDimensionFloor", func(t *testing.T) {
		b, _ := newTestBuilder(t)
		snapshot := []timeline.Segment{{Start: 0, End: 5, Text: "hi"}}

		tiny := Geometry{Width: 2, Height: 2}
		instructions, _ := b.Build(snapshot, Geometry{Width: 2, Height: 2}, tiny, ScaleStretch)
		require.Len(t, instructions, 1)
		assert.GreaterOrEqual(t, instructions[0].Dest.W, 2)
		assert.GreaterOrEqual(t, instructions[0].Dest.H, 2)
	})
}
