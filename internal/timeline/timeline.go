package timeline

import (
	"math"
	"sort"
	"sync"
)

const timeEpsilon = 1e-6

// MergeOutcome describes what happened to an asynchronous transcription
// result when it was merged into the timeline.
type MergeOutcome int

// Merge outcomes
const (
	MergeCreated MergeOutcome = iota
	MergeApplied
	MergeDiscarded
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeCreated:
		return "created"
	case MergeApplied:
		return "applied"
	case MergeDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Timeline is the ordered, non-overlapping sequence of caption segments for
// one source video. It owns its segments exclusively and serializes all
// access with a single coarse lock; operations are short and contention is
// low.
type Timeline struct {
	mu            sync.RWMutex
	segmentLength float64
	videoDuration float64
	segments      []*Segment // ordered by Start
}

// New creates an empty timeline for a video of the given duration
func New(segmentLength, videoDuration float64) *Timeline {
	if segmentLength <= 0 {
		segmentLength = 5.0
	}
	return &Timeline{
		segmentLength: segmentLength,
		videoDuration: videoDuration,
	}
}

// SegmentLength returns the configured segment length in seconds
func (t *Timeline) SegmentLength() float64 {
	return t.segmentLength
}

// VideoDuration returns the source video duration in seconds
func (t *Timeline) VideoDuration() float64 {
	return t.videoDuration
}

// SegmentBounds returns the canonical [start, end) window containing
// timeSec: aligned to the segment grid, with the final segment clamped to
// the video duration.
func (t *Timeline) SegmentBounds(timeSec float64) (start, end float64) {
	if timeSec < 0 {
		timeSec = 0
	}
	start = math.Floor(timeSec/t.segmentLength) * t.segmentLength
	end = start + t.segmentLength
	if t.videoDuration > 0 && end > t.videoDuration {
		end = t.videoDuration
	}
	return start, end
}

// SegmentAt returns a copy of the segment covering timeSec, if any
func (t *Timeline) SegmentAt(timeSec float64) (Segment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if seg := t.findAt(timeSec); seg != nil {
		return *seg, true
	}
	return Segment{}, false
}

// Token returns the generation token of the segment covering timeSec, or
// zero when no segment exists. Captured by the transcription mediator at
// request time and compared at merge time.
func (t *Timeline) Token(timeSec float64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if seg := t.findAt(timeSec); seg != nil {
		return seg.generation
	}
	return 0
}

// Upsert inserts a segment or replaces the segment occupying exactly the
// same range. A range intersecting a different existing segment is rejected
// with OverlapError and the timeline is left unchanged.
func (t *Timeline) Upsert(seg Segment) error {
	if err := validateRange(seg.Start, seg.End, t.segmentLength, t.videoDuration); err != nil {
		return err
	}
	if seg.Language == "" {
		seg.Language = LanguageEnglish
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.segments {
		if sameRange(existing, seg.Start, seg.End) {
			seg.generation = existing.generation + 1
			*existing = seg
			return nil
		}
		if existing.Overlaps(seg.Start, seg.End) {
			return &OverlapError{
				Start:         seg.Start,
				End:           seg.End,
				ExistingStart: existing.Start,
				ExistingEnd:   existing.End,
			}
		}
	}

	seg.generation = 1
	t.insert(&seg)
	return nil
}

// SetText sets caption text at timeSec, creating the segment at its
// canonical bounds when none exists. A hand-edit always clears the
// auto-generated flag and confidence.
func (t *Timeline) SetText(timeSec float64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seg := t.findAt(timeSec); seg != nil {
		seg.Text = text
		seg.AutoGenerated = false
		seg.Confidence = nil
		seg.generation++
		return nil
	}

	start, end := t.SegmentBounds(timeSec)
	if end-start <= timeEpsilon {
		return ErrSegmentNotFound
	}
	t.insert(&Segment{
		Start:      start,
		End:        end,
		Text:       text,
		Language:   LanguageEnglish,
		generation: 1,
	})
	return nil
}

// Delete removes the segment covering timeSec
func (t *Timeline) Delete(timeSec float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, seg := range t.segments {
		if seg.Contains(timeSec) {
			t.segments = append(t.segments[:i], t.segments[i+1:]...)
			return nil
		}
	}
	return ErrSegmentNotFound
}

// ApplyTranscription merges an asynchronous transcription result for the
// window [start, end) under the optimistic-concurrency contract:
//
//  1. no segment for the range: create it auto-generated
//  2. segment still auto-generated and its generation matches the token
//     captured at request time: overwrite text and confidence
//  3. otherwise the segment was touched since the request was issued and
//     the result is silently discarded
//
// A detected language is stored only while the segment is in mixed
// auto-detect mode; it never overrides a language the user chose.
func (t *Timeline) ApplyTranscription(start, end float64, token uint64, text string, confidence float64, detected Language) MergeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	seg := t.findAt(start)
	if seg == nil {
		conf := confidence
		created := &Segment{
			Start:         start,
			End:           end,
			Text:          text,
			Language:      LanguageEnglish,
			AutoGenerated: true,
			Confidence:    &conf,
			generation:    1,
		}
		if detected != "" {
			created.Language = detected
		}
		if t.overlapsAny(created) {
			// The window straddles a neighboring segment the user created
			// after the request went out. Treat as touched.
			return MergeDiscarded
		}
		t.insert(created)
		return MergeCreated
	}

	if !seg.AutoGenerated || seg.generation != token {
		return MergeDiscarded
	}

	conf := confidence
	seg.Text = text
	seg.Confidence = &conf
	seg.AutoGenerated = true
	if detected != "" && seg.Language == LanguageMixed {
		seg.Language = detected
	}
	seg.generation++
	return MergeApplied
}

// Segments returns copies of all segments in start order
func (t *Timeline) Segments() []Segment {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Segment, len(t.segments))
	for i, seg := range t.segments {
		out[i] = *seg
	}
	return out
}

// Snapshot returns a point-in-time copy of the timeline's segments for a
// render job. Renders read the snapshot so mid-render edits cannot corrupt
// the instruction sequence.
func (t *Timeline) Snapshot() []Segment {
	return t.Segments()
}

// SegmentsReferencing returns copies of segments that reference presetID
func (t *Timeline) SegmentsReferencing(presetID string) []Segment {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Segment
	for _, seg := range t.segments {
		if seg.PresetID == presetID {
			out = append(out, *seg)
		}
	}
	return out
}

// DetachPreset rewrites every reference to presetID to fallbackID and
// returns the number of segments changed
func (t *Timeline) DetachPreset(presetID, fallbackID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, seg := range t.segments {
		if seg.PresetID == presetID {
			seg.PresetID = fallbackID
			seg.generation++
			n++
		}
	}
	return n
}

// findAt returns the segment containing timeSec; callers hold the lock
func (t *Timeline) findAt(timeSec float64) *Segment {
	i := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].End > timeSec
	})
	if i < len(t.segments) && t.segments[i].Contains(timeSec) {
		return t.segments[i]
	}
	return nil
}

// overlapsAny reports whether seg intersects any existing segment; callers
// hold the lock
func (t *Timeline) overlapsAny(seg *Segment) bool {
	for _, existing := range t.segments {
		if existing.Overlaps(seg.Start, seg.End) {
			return true
		}
	}
	return false
}

// insert adds seg keeping start order; callers hold the lock and have
// checked for overlap
func (t *Timeline) insert(seg *Segment) {
	i := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].Start > seg.Start
	})
	t.segments = append(t.segments, nil)
	copy(t.segments[i+1:], t.segments[i:])
	t.segments[i] = seg
}

func sameRange(seg *Segment, start, end float64) bool {
	return math.Abs(seg.Start-start) < timeEpsilon && math.Abs(seg.End-end) < timeEpsilon
}

func validateRange(start, end, segmentLength, videoDuration float64) error {
	switch {
	case start < 0:
		return &ValidationError{Reason: "negative start"}
	case end <= start:
		return &ValidationError{Reason: "end not after start"}
	case end-start > segmentLength+timeEpsilon:
		return &ValidationError{Reason: "segment longer than configured segment length"}
	case videoDuration > 0 && end > videoDuration+timeEpsilon:
		return &ValidationError{Reason: "segment extends past end of video"}
	}
	return nil
}
