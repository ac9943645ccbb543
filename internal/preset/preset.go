package preset

import "fmt"

// DefaultPresetID is the sentinel preset that always exists and cannot be
// deleted. Segments with no preset, or a dangling one, fall back to it.
const DefaultPresetID = "default"

// RGBA is a caption text color
type RGBA struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// FFmpegColor renders the color in drawtext's 0xRRGGBB@alpha notation
func (c RGBA) FFmpegColor() string {
	return fmt.Sprintf("0x%02X%02X%02X@%.2f", c.R, c.G, c.B, float64(c.A)/255.0)
}

// Anchor names the edge a caption is positioned against
type Anchor string

// Anchor constants
const (
	AnchorTop    Anchor = "top"
	AnchorBottom Anchor = "bottom"
	AnchorCustom Anchor = "custom"
)

// Position places a caption within the displayed frame. Offsets are
// percentages of the displayed frame's dimensions, measured from the
// anchored edge (or from the top-left corner for custom anchors).
type Position struct {
	Anchor     Anchor  `json:"anchor"`
	OffsetXPct float64 `json:"offset_x_pct"`
	OffsetYPct float64 `json:"offset_y_pct"`
}

// AnimationKind names a caption entrance/exit animation
type AnimationKind string

// Animation kinds
const (
	AnimationNone  AnimationKind = "none"
	AnimationFade  AnimationKind = "fade"
	AnimationSlide AnimationKind = "slide"
)

// Direction is a slide animation direction
type Direction string

// Slide directions
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Animation describes how a caption appears and disappears. The render
// builder carries these through unresolved; the codec engine's filter
// expressions realize them.
type Animation struct {
	Kind      AnimationKind `json:"kind"`
	Direction Direction     `json:"direction,omitempty"`
	Duration  float64       `json:"duration,omitempty"`
}

// Preset is a named, reusable visual style for caption text. Segments
// reference presets by id, never by value, so editing a preset changes the
// rendering of every referencing segment.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FontRef   string    `json:"font_ref"`
	SizePt    int       `json:"size_pt"`
	Color     RGBA      `json:"color"`
	Position  Position  `json:"position"`
	Animation Animation `json:"animation"`
}

// Validate checks a preset definition
func (p Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	if p.SizePt <= 0 {
		return fmt.Errorf("preset size must be positive")
	}
	switch p.Position.Anchor {
	case AnchorTop, AnchorBottom, AnchorCustom:
	default:
		return fmt.Errorf("unknown anchor %q", p.Position.Anchor)
	}
	switch p.Animation.Kind {
	case AnimationNone, AnimationFade, AnimationSlide:
	default:
		return fmt.Errorf("unknown animation %q", p.Animation.Kind)
	}
	return nil
}

// DefaultPreset returns the sentinel preset definition
func DefaultPreset() Preset {
	return Preset{
		ID:      DefaultPresetID,
		Name:    "Default",
		FontRef: "",
		SizePt:  36,
		Color:   RGBA{R: 255, G: 255, B: 255, A: 255},
		Position: Position{
			Anchor:     AnchorBottom,
			OffsetYPct: 8,
		},
		Animation: Animation{
			Kind:     AnimationFade,
			Duration: 0.5,
		},
	}
}
