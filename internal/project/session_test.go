package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/timeline"
)

func TestTimelineScanner(t *testing.T) {
	tl := timeline.New(5.0, 30.0)
	require.NoError(t, tl.Upsert(timeline.Segment{Start: 0, End: 5, Text: "a", PresetID: "styled"}))
	require.NoError(t, tl.Upsert(timeline.Segment{Start: 5, End: 10, Text: "b", PresetID: "styled"}))
	require.NoError(t, tl.Upsert(timeline.Segment{Start: 10, End: 15, Text: "c"}))

	scanner := &timelineScanner{tl: tl}

	refs := scanner.SegmentsReferencingPreset("styled")
	require.Len(t, refs, 2)
	assert.Equal(t, preset.SegmentRef{Start: 0, End: 5}, refs[0])
	assert.Equal(t, preset.SegmentRef{Start: 5, End: 10}, refs[1])

	detached := scanner.DetachPreset("styled", preset.DefaultPresetID)
	assert.Equal(t, 2, detached)
	assert.Empty(t, scanner.SegmentsReferencingPreset("styled"))
}

func TestProjectTitle(t *testing.T) {
	p := &Project{VideoPath: "/videos/my clip.mp4"}
	assert.Equal(t, "my clip", p.Title())
}
