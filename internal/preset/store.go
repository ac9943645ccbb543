package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for operations on an unknown preset id
var ErrNotFound = errors.New("preset not found")

// ErrDefaultPreset is returned when deleting the sentinel default preset
var ErrDefaultPreset = errors.New("default preset cannot be deleted")

// SegmentRef identifies a segment that references a preset
type SegmentRef struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// InUseError is returned when deleting a preset still referenced by
// segments in a loaded timeline and force-detach was not requested
type InUseError struct {
	ID   string
	Refs []SegmentRef
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("preset %s is referenced by %d segment(s)", e.ID, len(e.Refs))
}

// ReferenceScanner reports and rewrites preset references held by a loaded
// timeline. The project session registers one per open timeline.
type ReferenceScanner interface {
	SegmentsReferencingPreset(presetID string) []SegmentRef
	DetachPreset(presetID, fallbackID string) int
}

// Store holds named style presets keyed by stable id. Ids are assigned once
// and never reused after delete.
type Store struct {
	mu       sync.RWMutex
	presets  map[string]Preset
	created  map[string]time.Time
	scanners []ReferenceScanner
	path     string
}

// NewStore creates a store containing only the default preset. If path is
// non-empty the store persists to that document on every change.
func NewStore(path string) *Store {
	s := &Store{
		presets: map[string]Preset{DefaultPresetID: DefaultPreset()},
		created: map[string]time.Time{DefaultPresetID: time.Unix(0, 0)},
		path:    path,
	}
	return s
}

// OpenStore loads a preset document, creating it with the default preset
// when it does not exist
func OpenStore(path string) (*Store, error) {
	s := NewStore(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset document: %w", err)
	}

	var doc map[string]Preset
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse preset document: %w", err)
	}

	base := time.Unix(1, 0)
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		def := doc[id]
		def.ID = id
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid preset %s: %w", id, err)
		}
		s.presets[id] = def
		if id != DefaultPresetID {
			s.created[id] = base.Add(time.Duration(i) * time.Second)
		}
	}

	return s, nil
}

// RegisterScanner registers a timeline for in-use checks and force-detach
func (s *Store) RegisterScanner(scanner ReferenceScanner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanners = append(s.scanners, scanner)
}

// UnregisterScanner removes a previously registered timeline
func (s *Store) UnregisterScanner(scanner ReferenceScanner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.scanners {
		if sc == scanner {
			s.scanners = append(s.scanners[:i], s.scanners[i+1:]...)
			return
		}
	}
}

// Create adds a preset and returns its assigned id
func (s *Store) Create(def Preset) (string, error) {
	def.ID = uuid.New().String()
	if err := def.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.presets[def.ID] = def
	s.created[def.ID] = time.Now()

	if err := s.save(); err != nil {
		delete(s.presets, def.ID)
		delete(s.created, def.ID)
		return "", err
	}
	return def.ID, nil
}

// Update replaces the definition behind an existing id
func (s *Store) Update(id string, def Preset) error {
	def.ID = id
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.presets[id]
	if !ok {
		return ErrNotFound
	}
	s.presets[id] = def

	if err := s.save(); err != nil {
		s.presets[id] = prev
		return err
	}
	return nil
}

// Delete removes a preset. Deleting an id referenced by any segment in any
// registered timeline fails with InUseError unless force is set, in which
// case referencing segments fall back to the default preset.
func (s *Store) Delete(id string, force bool) error {
	if id == DefaultPresetID {
		return ErrDefaultPreset
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.presets[id]
	if !ok {
		return ErrNotFound
	}

	var refs []SegmentRef
	for _, scanner := range s.scanners {
		refs = append(refs, scanner.SegmentsReferencingPreset(id)...)
	}
	if len(refs) > 0 {
		if !force {
			return &InUseError{ID: id, Refs: refs}
		}
		for _, scanner := range s.scanners {
			scanner.DetachPreset(id, DefaultPresetID)
		}
	}

	delete(s.presets, id)
	delete(s.created, id)

	if err := s.save(); err != nil {
		s.presets[id] = prev
		return err
	}
	return nil
}

// Get returns the preset behind an id
func (s *Store) Get(id string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.presets[id]
	if !ok {
		return Preset{}, ErrNotFound
	}
	return def, nil
}

// Resolve returns the preset behind an id, falling back to the default
// preset for empty or dangling references
func (s *Store) Resolve(id string) Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if def, ok := s.presets[id]; ok {
		return def
	}
	return s.presets[DefaultPresetID]
}

// List returns all presets, default first, then in creation order
func (s *Store) List() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Preset, 0, len(s.presets))
	for _, def := range s.presets {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID == DefaultPresetID {
			return true
		}
		if out[j].ID == DefaultPresetID {
			return false
		}
		ci, cj := s.created[out[i].ID], s.created[out[j].ID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// save persists the document; callers hold the lock. A store with no path
// is in-memory only.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	doc := make(map[string]Preset, len(s.presets))
	for id, def := range s.presets {
		doc[id] = def
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace preset document: %w", err)
	}
	return nil
}
