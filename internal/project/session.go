package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/captionforge/captionforge/internal/config"
	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/media"
	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/render"
	"github.com/captionforge/captionforge/internal/timeline"
	"github.com/captionforge/captionforge/internal/transcribe"
)

// ErrNoProject is returned for operations that need an open project
var ErrNoProject = fmt.Errorf("no project is open")

// timelineScanner adapts a timeline to the preset store's reference
// scanner contract
type timelineScanner struct {
	tl *timeline.Timeline
}

func (s *timelineScanner) SegmentsReferencingPreset(presetID string) []preset.SegmentRef {
	segments := s.tl.SegmentsReferencing(presetID)
	refs := make([]preset.SegmentRef, len(segments))
	for i, seg := range segments {
		refs[i] = preset.SegmentRef{Start: seg.Start, End: seg.End}
	}
	return refs
}

func (s *timelineScanner) DetachPreset(presetID, fallbackID string) int {
	return s.tl.DetachPreset(presetID, fallbackID)
}

// Project is one open video with its timeline and transcription mediator
type Project struct {
	ID           string
	VideoPath    string
	CaptionsPath string
	AudioPath    string
	Info         media.VideoInfo
	Timeline     *timeline.Timeline
	Mediator     *transcribe.Mediator
	Render       *render.Orchestrator
	OpenedAt     time.Time

	scanner *timelineScanner
}

// Title derives a display title from the video filename
func (p *Project) Title() string {
	base := filepath.Base(p.VideoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Session owns the single open project and its load/save/close lifecycle.
// All components reach the current project through the session instead of
// ambient global state.
type Session struct {
	cfg     *config.Config
	log     *logging.Logger
	ffmpeg  *media.FFmpeg
	presets *preset.Store
	svc     transcribe.Service
	store   *Store
	builder *render.Builder

	mu      sync.Mutex
	current *Project
}

// NewSession creates a project session. store may be nil to disable
// project history.
func NewSession(cfg *config.Config, log *logging.Logger, ffmpeg *media.FFmpeg, presets *preset.Store, svc transcribe.Service, store *Store, builder *render.Builder) *Session {
	return &Session{
		cfg:     cfg,
		log:     log,
		ffmpeg:  ffmpeg,
		presets: presets,
		svc:     svc,
		store:   store,
		builder: builder,
	}
}

// Open loads a video as the current project: probes it, extracts its audio
// track for transcription, and loads the caption document saved next to the
// video if one exists. An already open project is closed first.
func (s *Session) Open(ctx context.Context, videoPath string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.closeLocked()
	}

	info, err := s.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Media.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	audioPath := filepath.Join(s.cfg.Media.TempDir, fmt.Sprintf("audio-%s.wav", uuid.New().String()))
	if err := s.ffmpeg.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, fmt.Errorf("failed to extract audio track: %w", err)
	}

	captionsPath := videoPath + ".captions.json"
	var tl *timeline.Timeline
	if _, statErr := os.Stat(captionsPath); statErr == nil {
		tl, err = timeline.LoadFile(captionsPath, s.cfg.Timeline.SegmentLength, info.Duration)
		if err != nil {
			os.Remove(audioPath)
			return nil, fmt.Errorf("failed to load caption document: %w", err)
		}
	} else {
		tl = timeline.New(s.cfg.Timeline.SegmentLength, info.Duration)
	}

	mediator := transcribe.NewMediator(tl, audioPath, s.ffmpeg, s.svc, s.log, transcribe.Config{
		SampleRate:          s.cfg.Transcribe.SampleRate,
		ConfidenceThreshold: s.cfg.Transcribe.ConfidenceThreshold,
		TempDir:             s.cfg.Media.TempDir,
		RequestTimeout:      s.cfg.Transcribe.RequestTimeout,
	})

	var recorder render.JobRecorder
	if s.store != nil {
		recorder = s.store
	}
	orchestrator := render.NewOrchestrator(tl, s.builder, s.ffmpeg, nil, recorder, s.log, render.Options{
		Encoder:      s.cfg.Render.Encoder,
		CRF:          s.cfg.Render.CRF,
		Preset:       s.cfg.Render.Preset,
		AudioBitrate: s.cfg.Render.AudioBitrate,
	})

	proj := &Project{
		ID:           uuid.New().String(),
		VideoPath:    videoPath,
		CaptionsPath: captionsPath,
		AudioPath:    audioPath,
		Info:         *info,
		Timeline:     tl,
		Mediator:     mediator,
		Render:       orchestrator,
		OpenedAt:     time.Now(),
		scanner:      &timelineScanner{tl: tl},
	}

	s.presets.RegisterScanner(proj.scanner)
	s.current = proj

	if s.store != nil {
		if err := s.store.UpsertProject(ctx, ProjectRecord{
			ID:        proj.ID,
			VideoPath: proj.VideoPath,
			Title:     proj.Title(),
			Duration:  info.Duration,
			Width:     info.Width,
			Height:    info.Height,
			OpenedAt:  proj.OpenedAt,
		}); err != nil {
			s.log.WithProject(proj.ID).ErrorWithErr("failed to record project history", err)
		}
	}

	s.log.WithProject(proj.ID).Infof("opened project %s (%.1fs, %dx%d)",
		proj.Title(), info.Duration, info.Width, info.Height)

	return proj, nil
}

// Save writes the current project's caption document atomically
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoProject
	}

	if err := s.current.Timeline.SaveFile(s.current.CaptionsPath); err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.MarkSaved(ctx, s.current.VideoPath, time.Now()); err != nil {
			s.log.WithProject(s.current.ID).ErrorWithErr("failed to record save time", err)
		}
	}

	s.log.WithProject(s.current.ID).Info("project saved")
	return nil
}

// Close tears down the current project. Unsaved timeline edits are
// discarded; callers save first when they want them kept.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoProject
	}
	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	proj := s.current

	proj.Mediator.StopContinuous()
	s.presets.UnregisterScanner(proj.scanner)
	if proj.AudioPath != "" {
		os.Remove(proj.AudioPath)
	}

	s.log.WithProject(proj.ID).Info("project closed")
	s.current = nil
}

// Current returns the open project, if any
func (s *Session) Current() (*Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}
