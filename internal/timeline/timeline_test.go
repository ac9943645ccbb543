package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestSegmentBounds(t *testing.T) {
	tl := New(5.0, 12.0)

	t.Run("AlignsToGrid", func(t *testing.T) {
		start, end := tl.SegmentBounds(7.3)
		assert.Equal(t, 5.0, start)
		assert.Equal(t, 10.0, end)
	})

	t.Run("FinalSegmentClamped", func(t *testing.T) {
		start, end := tl.SegmentBounds(11.0)
		assert.Equal(t, 10.0, start)
		assert.Equal(t, 12.0, end)
	})

	t.Run("NegativeTimeClamped", func(t *testing.T) {
		start, end := tl.SegmentBounds(-1.0)
		assert.Equal(t, 0.0, start)
		assert.Equal(t, 5.0, end)
	})
}

func TestUpsert(t *testing.T) {
	t.Run("InsertAndLookup", func(t *testing.T) {
		tl := New(5.0, 60.0)
		require.NoError(t, tl.Upsert(Segment{Start: 5, End: 10, Text: "hello"}))

		seg, ok := tl.SegmentAt(7.0)
		require.True(t, ok)
		assert.Equal(t, "hello", seg.Text)
		assert.Equal(t, LanguageEnglish, seg.Language)

		_, ok = tl.SegmentAt(12.0)
		assert.False(t, ok)
	})

	t.Run("ReplaceSameRange", func(t *testing.T) {
		tl := New(5.0, 60.0)
		require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "first"}))
		before, _ := tl.SegmentAt(0)

		require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "second"}))
		after, ok := tl.SegmentAt(0)
		require.True(t, ok)
		assert.Equal(t, "second", after.Text)
		assert.Greater(t, after.Generation(), before.Generation())
	})

	t.Run("OverlapRejectedTimelineUnchanged", func(t *testing.T) {
		tl := New(5.0, 60.0)
		require.NoError(t, tl.Upsert(Segment{Start: 5, End: 10, Text: "keep"}))

		err := tl.Upsert(Segment{Start: 7, End: 12, Text: "intruder"})
		var overlapErr *OverlapError
		require.ErrorAs(t, err, &overlapErr)
		assert.Equal(t, 5.0, overlapErr.ExistingStart)

		segs := tl.Segments()
		require.Len(t, segs, 1)
		assert.Equal(t, "keep", segs[0].Text)
	})

	t.Run("MalformedRange", func(t *testing.T) {
		tl := New(5.0, 60.0)
		assert.Error(t, tl.Upsert(Segment{Start: 5, End: 5}))
		assert.Error(t, tl.Upsert(Segment{Start: -1, End: 4}))
		assert.Error(t, tl.Upsert(Segment{Start: 0, End: 7}))
	})

	t.Run("OrderedInsertion", func(t *testing.T) {
		tl := New(5.0, 60.0)
		require.NoError(t, tl.Upsert(Segment{Start: 10, End: 15, Text: "c"}))
		require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "a"}))
		require.NoError(t, tl.Upsert(Segment{Start: 5, End: 10, Text: "b"}))

		segs := tl.Segments()
		require.Len(t, segs, 3)
		assert.Equal(t, "a", segs[0].Text)
		assert.Equal(t, "b", segs[1].Text)
		assert.Equal(t, "c", segs[2].Text)
	})
}

func TestSetText(t *testing.T) {
	t.Run("CreatesSegmentAtCanonicalBounds", func(t *testing.T) {
		tl := New(5.0, 12.0)
		require.NoError(t, tl.SetText(11.0, "tail"))

		seg, ok := tl.SegmentAt(10.5)
		require.True(t, ok)
		assert.Equal(t, 10.0, seg.Start)
		assert.Equal(t, 12.0, seg.End)
		assert.Equal(t, "tail", seg.Text)
	})

	t.Run("ClearsAutoGeneratedState", func(t *testing.T) {
		tl := New(5.0, 60.0)
		outcome := tl.ApplyTranscription(0, 5, 0, "auto text", 0.9, "")
		require.Equal(t, MergeCreated, outcome)

		require.NoError(t, tl.SetText(2.0, "my words"))
		seg, ok := tl.SegmentAt(2.0)
		require.True(t, ok)
		assert.False(t, seg.AutoGenerated)
		assert.Nil(t, seg.Confidence)
		assert.Equal(t, "my words", seg.Text)
	})
}

func TestDelete(t *testing.T) {
	tl := New(5.0, 60.0)
	require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "x"}))

	require.NoError(t, tl.Delete(3.0))
	assert.Empty(t, tl.Segments())

	assert.ErrorIs(t, tl.Delete(3.0), ErrSegmentNotFound)
}

func TestApplyTranscription(t *testing.T) {
	t.Run("CreatesWhenAbsent", func(t *testing.T) {
		tl := New(5.0, 60.0)
		outcome := tl.ApplyTranscription(5, 10, 0, "namaste", 0.9, "")
		assert.Equal(t, MergeCreated, outcome)

		seg, ok := tl.SegmentAt(5)
		require.True(t, ok)
		assert.True(t, seg.AutoGenerated)
		assert.Equal(t, "namaste", seg.Text)
		require.NotNil(t, seg.Confidence)
		assert.Equal(t, 0.9, *seg.Confidence)
	})

	t.Run("OverwritesAutoGeneratedWithMatchingToken", func(t *testing.T) {
		tl := New(5.0, 60.0)
		tl.ApplyTranscription(0, 5, 0, "first pass", 0.5, "")
		token := tl.Token(0)

		outcome := tl.ApplyTranscription(0, 5, token, "second pass", 0.8, "")
		assert.Equal(t, MergeApplied, outcome)

		seg, _ := tl.SegmentAt(0)
		assert.Equal(t, "second pass", seg.Text)
		assert.Equal(t, 0.8, *seg.Confidence)
	})

	t.Run("StaleResultDiscardedAfterHandEdit", func(t *testing.T) {
		tl := New(5.0, 60.0)
		tl.ApplyTranscription(0, 5, 0, "machine guess", 0.9, "")
		token := tl.Token(0)

		// Hand-edit lands before the pending result for the old token
		require.NoError(t, tl.SetText(0, "what I actually said"))

		outcome := tl.ApplyTranscription(0, 5, token, "late machine guess", 0.95, "")
		assert.Equal(t, MergeDiscarded, outcome)

		seg, _ := tl.SegmentAt(0)
		assert.Equal(t, "what I actually said", seg.Text)
		assert.False(t, seg.AutoGenerated)
	})

	t.Run("StaleTokenDiscardedEvenWhenStillAuto", func(t *testing.T) {
		tl := New(5.0, 60.0)
		tl.ApplyTranscription(0, 5, 0, "v1", 0.5, "")
		staleToken := tl.Token(0)

		// A superseding request merged in between
		require.Equal(t, MergeApplied, tl.ApplyTranscription(0, 5, staleToken, "v2", 0.6, ""))

		outcome := tl.ApplyTranscription(0, 5, staleToken, "v1-late", 0.7, "")
		assert.Equal(t, MergeDiscarded, outcome)
		seg, _ := tl.SegmentAt(0)
		assert.Equal(t, "v2", seg.Text)
	})

	t.Run("DetectedLanguageAdvisoryOnly", func(t *testing.T) {
		tl := New(5.0, 60.0)
		require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Language: LanguageMixed, AutoGenerated: true}))
		token := tl.Token(0)

		require.Equal(t, MergeApplied, tl.ApplyTranscription(0, 5, token, "kya haal hai", 0.9, LanguageHindiRomanized))
		seg, _ := tl.SegmentAt(0)
		assert.Equal(t, LanguageHindiRomanized, seg.Language)

		// An explicitly chosen language is never overwritten
		tl2 := New(5.0, 60.0)
		require.NoError(t, tl2.Upsert(Segment{Start: 0, End: 5, Language: LanguageEnglish, AutoGenerated: true}))
		token2 := tl2.Token(0)
		require.Equal(t, MergeApplied, tl2.ApplyTranscription(0, 5, token2, "hello", 0.9, LanguageHindiRomanized))
		seg2, _ := tl2.SegmentAt(0)
		assert.Equal(t, LanguageEnglish, seg2.Language)
	})
}

func TestNeedsReview(t *testing.T) {
	seg := Segment{AutoGenerated: true, Confidence: floatPtr(0.4)}
	assert.True(t, seg.NeedsReview(0.6))

	seg.Confidence = floatPtr(0.8)
	assert.False(t, seg.NeedsReview(0.6))

	handEdited := Segment{Text: "typed", Confidence: floatPtr(0.1)}
	assert.False(t, handEdited.NeedsReview(0.6))
}

func TestSerializeRoundTrip(t *testing.T) {
	tl := New(5.0, 12.0)
	require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "one", PresetID: "fadeBottom", Language: LanguageEnglish}))
	require.NoError(t, tl.Upsert(Segment{Start: 5, End: 10, Text: "do", Language: LanguageHindiRomanized}))
	require.Equal(t, MergeCreated, tl.ApplyTranscription(10, 12, 0, "teen", 0.72, ""))

	records := tl.Serialize()
	require.Len(t, records, 3)

	loaded, err := Deserialize(records, 5.0, 12.0)
	require.NoError(t, err)
	assert.Equal(t, records, loaded.Serialize())
}

func TestDeserializeRejectsInvalidLoad(t *testing.T) {
	valid := Record{Start: 0, End: 5, Text: "ok", Language: "en"}

	t.Run("Overlap", func(t *testing.T) {
		_, err := Deserialize([]Record{
			valid,
			{Start: 4, End: 9, Text: "bad", Language: "en"},
		}, 5.0, 60.0)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("MalformedRange", func(t *testing.T) {
		_, err := Deserialize([]Record{{Start: 5, End: 5, Language: "en"}}, 5.0, 60.0)
		assert.Error(t, err)
	})

	t.Run("UnknownLanguage", func(t *testing.T) {
		_, err := Deserialize([]Record{{Start: 0, End: 5, Language: "klingon"}}, 5.0, 60.0)
		assert.Error(t, err)
	})

	t.Run("SingleBadRecordInvalidatesWholeLoad", func(t *testing.T) {
		tl, err := Deserialize([]Record{
			valid,
			{Start: 10, End: 10, Language: "en"},
		}, 5.0, 60.0)
		assert.Error(t, err)
		assert.Nil(t, tl)
	})
}

func TestDetachPreset(t *testing.T) {
	tl := New(5.0, 60.0)
	require.NoError(t, tl.Upsert(Segment{Start: 0, End: 5, Text: "a", PresetID: "loud"}))
	require.NoError(t, tl.Upsert(Segment{Start: 5, End: 10, Text: "b", PresetID: "quiet"}))
	require.NoError(t, tl.Upsert(Segment{Start: 10, End: 15, Text: "c", PresetID: "loud"}))

	refs := tl.SegmentsReferencing("loud")
	assert.Len(t, refs, 2)

	n := tl.DetachPreset("loud", "default")
	assert.Equal(t, 2, n)
	assert.Empty(t, tl.SegmentsReferencing("loud"))
	assert.Len(t, tl.SegmentsReferencing("default"), 2)
}

// End-to-end shape of the 12-second video scenario: segments [0,5), [5,10),
// [10,12), a manual caption on the middle one, an auto result for the first,
// and a stale result for the middle one arriving late.
func TestTwelveSecondScenario(t *testing.T) {
	tl := New(5.0, 12.0)

	staleToken := tl.Token(5.0)
	require.NoError(t, tl.SetText(5.0, "typed by hand"))

	outcome := tl.ApplyTranscription(0, 5, 0, "namaste", 0.9, "")
	require.Equal(t, MergeCreated, outcome)

	seg1, ok := tl.SegmentAt(0)
	require.True(t, ok)
	assert.True(t, seg1.AutoGenerated)
	assert.Equal(t, "namaste", seg1.Text)
	assert.Equal(t, 0.9, *seg1.Confidence)

	// Stale concurrent result for segment 2 must not clobber the edit
	assert.Equal(t, MergeDiscarded, tl.ApplyTranscription(5, 10, staleToken, "machine text", 0.8, ""))
	seg2, _ := tl.SegmentAt(5.0)
	assert.Equal(t, "typed by hand", seg2.Text)

	start, end := tl.SegmentBounds(11.0)
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 12.0, end)
}
