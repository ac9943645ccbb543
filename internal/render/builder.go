package render

import (
	"fmt"
	"math"
	"sort"

	"github.com/captionforge/captionforge/internal/metrics"
	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/timeline"
)

// minRectDim is the floor on instruction rect dimensions to avoid
// degenerate drawtext boxes
const minRectDim = 2

// boxWidthPct is the caption box width as a share of the displayed frame
const boxWidthPct = 0.90

// Instruction is one fully resolved caption overlay: exact timing window,
// absolute pixel rect, and endpoint style. Animation parameters pass
// through for the filter stage to realize. Instructions are built fresh per
// render job and never persisted.
type Instruction struct {
	Text         string           `json:"text"`
	StartSec     float64          `json:"start_sec"`
	EndSec       float64          `json:"end_sec"`
	FontPath     string           `json:"font_path"`
	SizePt       int              `json:"size_pt"`
	Color        preset.RGBA      `json:"color"`
	Animation    preset.Animation `json:"animation"`
	Dest         Rect             `json:"dest"`
	FontFallback bool             `json:"font_fallback,omitempty"`
}

// Warning is a non-fatal problem found while compiling instructions
type Warning struct {
	SegmentStart float64
	Message      string
}

// Builder compiles a timeline snapshot plus the preset store into render
// instructions for one output geometry
type Builder struct {
	presets *preset.Store
	fonts   *preset.FontResolver
}

// NewBuilder creates a render job builder
func NewBuilder(presets *preset.Store, fonts *preset.FontResolver) *Builder {
	return &Builder{presets: presets, fonts: fonts}
}

// Build compiles one instruction per non-empty segment, time-ordered by
// start. Dangling preset references fall back to the default preset; a
// missing font substitutes the system default and emits a warning instead
// of failing the job. An empty snapshot yields an empty instruction slice,
// which renders an unmodified copy.
func (b *Builder) Build(snapshot []timeline.Segment, src, dst Geometry, mode ScalingMode) ([]Instruction, []Warning) {
	displayed := FitRect(src, dst, mode)

	var instructions []Instruction
	var warnings []Warning

	for _, seg := range snapshot {
		if seg.Text == "" {
			continue
		}

		style := b.presets.Resolve(seg.PresetID)

		fontPath, fellBack := b.fonts.Resolve(style.FontRef)
		if fellBack {
			warnings = append(warnings, Warning{
				SegmentStart: seg.Start,
				Message:      fmt.Sprintf("font %q not found, using default", style.FontRef),
			})
			metrics.FontFallbacksTotal.Inc()
		}

		instructions = append(instructions, Instruction{
			Text:         seg.Text,
			StartSec:     seg.Start,
			EndSec:       seg.End,
			FontPath:     fontPath,
			SizePt:       style.SizePt,
			Color:        style.Color,
			Animation:    style.Animation,
			Dest:         anchorRect(style, displayed),
			FontFallback: fellBack,
		})
	}

	sort.Slice(instructions, func(i, j int) bool {
		return instructions[i].StartSec < instructions[j].StartSec
	})

	return instructions, warnings
}

// anchorRect resolves a preset position to absolute output pixels within
// the displayed frame. Percentage offsets are measured from the anchored
// edge; custom anchors measure from the displayed frame's top-left corner.
func anchorRect(style preset.Preset, displayed Rect) Rect {
	boxW := clampDim(int(math.Round(float64(displayed.W) * boxWidthPct)))
	boxH := clampDim(int(math.Round(float64(style.SizePt) * 1.5)))

	offX := pctOf(style.Position.OffsetXPct, displayed.W)
	offY := pctOf(style.Position.OffsetYPct, displayed.H)

	// Centered horizontally, shifted by the x offset
	x := displayed.X + (displayed.W-boxW)/2 + offX

	var y int
	switch style.Position.Anchor {
	case preset.AnchorTop:
		y = displayed.Y + offY
	case preset.AnchorBottom:
		y = displayed.Y + displayed.H - offY - boxH
	default: // custom
		x = displayed.X + offX
		y = displayed.Y + offY
	}

	return Rect{X: x, Y: y, W: boxW, H: boxH}
}

func pctOf(pct float64, span int) int {
	return int(math.Round(pct / 100.0 * float64(span)))
}

func clampDim(d int) int {
	if d < minRectDim {
		return minRectDim
	}
	return d
}
