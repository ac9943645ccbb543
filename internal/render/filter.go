package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/captionforge/captionforge/internal/preset"
)

// defaultFadeDuration is used when an animation carries no duration
const defaultFadeDuration = 0.5

// slideOffsetPx is how far a sliding caption travels into its rest position
const slideOffsetPx = 50

// escapeText makes caption text safe inside a drawtext filter argument
func escapeText(s string) string {
	return strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
		`,`, `\,`,
	).Replace(s)
}

func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DrawtextFilter renders one instruction as an ffmpeg drawtext filter. The
// caption is enabled only inside its timing window; fade and slide
// animations become alpha and y expressions over t.
func DrawtextFilter(inst Instruction) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "drawtext=text='%s'", escapeText(inst.Text))
	if inst.FontPath != "" {
		fmt.Fprintf(&sb, ":fontfile=%s", inst.FontPath)
	}
	fmt.Fprintf(&sb, ":fontsize=%d", inst.SizePt)
	fmt.Fprintf(&sb, ":fontcolor=%s", inst.Color.FFmpegColor())
	fmt.Fprintf(&sb, ":x='%d+(%d-text_w)/2'", inst.Dest.X, inst.Dest.W)
	fmt.Fprintf(&sb, ":y=%d", inst.Dest.Y)

	d := inst.Animation.Duration
	if d <= 0 {
		d = defaultFadeDuration
	}
	// A short segment cannot fade longer than half its window
	if half := (inst.EndSec - inst.StartSec) / 2; d > half {
		d = half
	}

	start := inst.StartSec
	end := inst.EndSec

	switch inst.Animation.Kind {
	case preset.AnimationFade:
		sb.WriteString(":alpha='" + fadeAlphaExpr(start, end, d) + "'")
	case preset.AnimationSlide:
		sb.WriteString(":alpha='" + fadeAlphaExpr(start, end, d) + "'")
		sb.WriteString(":y='" + slideYExpr(inst, start, d) + "'")
	}

	fmt.Fprintf(&sb, ":enable='between(t,%s,%s)'", formatSec(start), formatSec(end))

	return sb.String()
}

// fadeAlphaExpr ramps alpha 0->1 over the first d seconds and 1->0 over
// the last d seconds of the window
func fadeAlphaExpr(start, end, d float64) string {
	fadeInEnd := start + d
	fadeOutStart := end - d
	ds := formatSec(d)
	return fmt.Sprintf(
		"if(lt(t,%s),0,if(lt(t,%s),(t-%s)/%s,if(lt(t,%s),1,if(lt(t,%s),1-(t-%s)/%s,0))))",
		formatSec(start),
		formatSec(fadeInEnd), formatSec(start), ds,
		formatSec(fadeOutStart),
		formatSec(end), formatSec(fadeOutStart), ds,
	)
}

// slideYExpr moves the caption from an offset position into its rest y
// during the entrance window. Direction up slides in from below, down
// slides in from above.
func slideYExpr(inst Instruction, start, d float64) string {
	restY := inst.Dest.Y
	fromY := restY + slideOffsetPx
	if inst.Animation.Direction == preset.DirectionDown {
		fromY = restY - slideOffsetPx
	}
	return fmt.Sprintf(
		"if(lt(t,%s),%d+(t-%s)/%s*(%d-%d),%d)",
		formatSec(start+d), fromY, formatSec(start), formatSec(d), restY, fromY, restY,
	)
}

// FilterGraph composes the full -vf argument: the geometry transform for
// the scaling mode followed by every caption overlay in time order
func FilterGraph(instructions []Instruction, dst Geometry, mode ScalingMode) string {
	parts := make([]string, 0, len(instructions)+1)

	switch mode {
	case ScaleCover:
		parts = append(parts, fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
			dst.Width, dst.Height, dst.Width, dst.Height))
	case ScaleStretch:
		parts = append(parts, fmt.Sprintf("scale=%d:%d", dst.Width, dst.Height))
	default: // contain
		parts = append(parts, fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			dst.Width, dst.Height, dst.Width, dst.Height))
	}

	for _, inst := range instructions {
		parts = append(parts, DrawtextFilter(inst))
	}

	return strings.Join(parts, ",")
}
