package render

import (
	"fmt"
	"math"
)

// ScalingMode maps the source frame onto the target output frame
type ScalingMode string

// Scaling modes
const (
	// ScaleContain letterboxes: the full source frame is visible, padded
	// to fill the target.
	ScaleContain ScalingMode = "contain"
	// ScaleCover crops: the target is filled completely, trimming the
	// overflowing axis.
	ScaleCover ScalingMode = "cover"
	// ScaleStretch maps source to target directly, ignoring aspect ratio.
	ScaleStretch ScalingMode = "stretch"
)

// ParseScalingMode validates a scaling mode string
func ParseScalingMode(s string) (ScalingMode, error) {
	switch ScalingMode(s) {
	case ScaleContain, ScaleCover, ScaleStretch:
		return ScalingMode(s), nil
	case "":
		return ScaleContain, nil
	}
	return "", fmt.Errorf("unknown scaling mode %q", s)
}

// Geometry is a frame size in pixels
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive
func (g Geometry) Valid() bool {
	return g.Width > 0 && g.Height > 0
}

// Rect is an axis-aligned pixel rectangle in output coordinates
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FitRect computes the displayed frame rectangle within the target canvas.
// Caption anchors resolve against this rect rather than the raw target, so
// a caption anchored to the bottom sits above the letterbox bar instead of
// inside it. For cover and stretch the displayed frame is the whole target.
func FitRect(src, dst Geometry, mode ScalingMode) Rect {
	if mode != ScaleContain || !src.Valid() {
		return Rect{X: 0, Y: 0, W: dst.Width, H: dst.Height}
	}

	scale := math.Min(
		float64(dst.Width)/float64(src.Width),
		float64(dst.Height)/float64(src.Height),
	)
	w := int(math.Round(float64(src.Width) * scale))
	h := int(math.Round(float64(src.Height) * scale))

	return Rect{
		X: (dst.Width - w) / 2,
		Y: (dst.Height - h) / 2,
		W: w,
		H: h,
	}
}
