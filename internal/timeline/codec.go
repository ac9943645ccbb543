package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Record is the persisted form of a segment. The whole timeline is
// serialized as a single JSON document; there is no partial-persistence
// contract.
type Record struct {
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
	Text          string   `json:"text"`
	Preset        string   `json:"preset"`
	Language      string   `json:"language"`
	AutoGenerated bool     `json:"auto_generated"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// Serialize returns the timeline as an ordered sequence of segment records
func (t *Timeline) Serialize() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]Record, len(t.segments))
	for i, seg := range t.segments {
		records[i] = Record{
			Start:         seg.Start,
			End:           seg.End,
			Text:          seg.Text,
			Preset:        seg.PresetID,
			Language:      string(seg.Language),
			AutoGenerated: seg.AutoGenerated,
		}
		if seg.Confidence != nil {
			conf := *seg.Confidence
			records[i].Confidence = &conf
		}
	}
	return records
}

// Deserialize builds a timeline from segment records. Validation is
// atomic: a single malformed or overlapping record rejects the whole load.
func Deserialize(records []Record, segmentLength, videoDuration float64) (*Timeline, error) {
	t := New(segmentLength, videoDuration)

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, rec := range sorted {
		if err := validateRange(rec.Start, rec.End, t.segmentLength, videoDuration); err != nil {
			verr := err.(*ValidationError)
			verr.Index = i
			return nil, verr
		}
		lang, err := ParseLanguage(rec.Language)
		if err != nil {
			return nil, &ValidationError{Index: i, Reason: err.Error()}
		}
		if rec.AutoGenerated && rec.Confidence != nil {
			if *rec.Confidence < 0 || *rec.Confidence > 1 {
				return nil, &ValidationError{Index: i, Reason: "confidence outside [0,1]"}
			}
		}
		if i > 0 && sorted[i-1].End > rec.Start+timeEpsilon {
			return nil, &ValidationError{Index: i, Reason: fmt.Sprintf(
				"range [%.3f,%.3f) overlaps previous record [%.3f,%.3f)",
				rec.Start, rec.End, sorted[i-1].Start, sorted[i-1].End)}
		}

		seg := &Segment{
			Start:         rec.Start,
			End:           rec.End,
			Text:          rec.Text,
			PresetID:      rec.Preset,
			Language:      lang,
			AutoGenerated: rec.AutoGenerated,
			generation:    1,
		}
		if rec.AutoGenerated && rec.Confidence != nil {
			conf := *rec.Confidence
			seg.Confidence = &conf
		}
		t.segments = append(t.segments, seg)
	}

	return t, nil
}

// SaveFile writes the timeline document atomically next to its final path
func (t *Timeline) SaveFile(path string) error {
	data, err := json.MarshalIndent(t.Serialize(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write timeline document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace timeline document: %w", err)
	}
	return nil
}

// LoadFile reads a timeline document from disk
func LoadFile(path string, segmentLength, videoDuration float64) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline document: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse timeline document: %w", err)
	}

	return Deserialize(records, segmentLength, videoDuration)
}
