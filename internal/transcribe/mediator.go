package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/metrics"
	"github.com/captionforge/captionforge/internal/timeline"
)

// ErrServiceHalted is returned by the continuous loop after two
// consecutive service failures
var ErrServiceHalted = errors.New("transcription halted after consecutive service failures")

// ErrLoopRunning is returned when starting a continuous loop while one is
// already active
var ErrLoopRunning = errors.New("continuous transcription already running")

// consecutiveFailureLimit is the fail-fast bound of the continuous loop
const consecutiveFailureLimit = 2

// RequestError is a per-request transcription failure carrying the segment
// window it belongs to
type RequestError struct {
	Start float64
	End   float64
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("transcription of segment [%.3f,%.3f) failed: %v", e.Start, e.End, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// AudioExtractor extracts one segment's audio window for the service.
// *media.FFmpeg satisfies it.
type AudioExtractor interface {
	ExtractAudioWindow(ctx context.Context, inputPath string, startSec, duration float64, sampleRate int, outputPath string) error
}

// Config holds mediator configuration
type Config struct {
	SampleRate          int
	ConfidenceThreshold float64
	TempDir             string
	RequestTimeout      time.Duration
}

// Mediator bridges the segment timeline to the external transcription
// service. Results merge back through the timeline's generation-token
// contract, so a user edit that lands while a request is in flight always
// wins over the late result.
type Mediator struct {
	tl        *timeline.Timeline
	audioPath string
	extractor AudioExtractor
	svc       Service
	log       *logging.Logger
	cfg       Config

	mu       sync.Mutex
	serial   uint64
	inflight map[float64]uint64 // segment start -> latest request serial

	loopCancel  context.CancelFunc
	loopRunning bool
	loopDone    chan struct{}
}

// NewMediator creates a mediator for one open project
func NewMediator(tl *timeline.Timeline, audioPath string, extractor AudioExtractor, svc Service, log *logging.Logger, cfg Config) *Mediator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Mediator{
		tl:        tl,
		audioPath: audioPath,
		extractor: extractor,
		svc:       svc,
		log:       log,
		cfg:       cfg,
		inflight:  make(map[float64]uint64),
	}
}

// ConfidenceThreshold returns the low-confidence review threshold
func (m *Mediator) ConfidenceThreshold() float64 {
	return m.cfg.ConfidenceThreshold
}

// TranscribeSegment runs one transcription round trip for the segment
// window containing startSec and merges the result. It blocks for the
// duration of the service call and is safe to run from its own goroutine.
// Issuing a new request for a segment already in flight supersedes the old
// one: the stale result is discarded on arrival.
func (m *Mediator) TranscribeSegment(ctx context.Context, startSec float64) (timeline.MergeOutcome, error) {
	start, end := m.tl.SegmentBounds(startSec)
	if end-start <= 0 {
		return timeline.MergeDiscarded, fmt.Errorf("segment start %.3f is beyond end of video", startSec)
	}

	token := m.tl.Token(start)
	hint := m.languageHint(start)

	m.mu.Lock()
	m.serial++
	requestID := m.serial
	m.inflight[start] = requestID
	m.mu.Unlock()

	metrics.TranscriptionsInFlight.Inc()
	defer metrics.TranscriptionsInFlight.Dec()
	defer m.clearInflight(start, requestID)

	log := m.log.WithSegment(start, end)

	audioPath := filepath.Join(m.cfg.TempDir, fmt.Sprintf("window-%s.wav", uuid.New().String()))
	if err := m.extractor.ExtractAudioWindow(ctx, m.audioPath, start, end-start, m.cfg.SampleRate, audioPath); err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues(m.svc.Name(), "failed").Inc()
		return timeline.MergeDiscarded, &RequestError{Start: start, End: end, Err: err}
	}
	defer os.Remove(audioPath)

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	began := time.Now()
	result, err := m.svc.Transcribe(reqCtx, Request{
		AudioPath:    audioPath,
		SampleRate:   m.cfg.SampleRate,
		LanguageHint: hint,
	})
	metrics.TranscriptionDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues(m.svc.Name(), "failed").Inc()
		log.ErrorWithErr("transcription service failed", err)
		return timeline.MergeDiscarded, &RequestError{Start: start, End: end, Err: err}
	}

	// A newer request for this segment went out while we were waiting;
	// this result is stale regardless of the segment's state.
	if !m.isCurrent(start, requestID) {
		metrics.TranscriptionRequestsTotal.WithLabelValues(m.svc.Name(), "superseded").Inc()
		log.Debug("transcription result superseded")
		return timeline.MergeDiscarded, nil
	}

	outcome := m.tl.ApplyTranscription(start, end, token, result.Text, result.Confidence, result.DetectedLanguage)
	metrics.TranscriptionRequestsTotal.WithLabelValues(m.svc.Name(), outcome.String()).Inc()
	log.LogMergeOutcome(start, end, outcome.String(), result.Confidence)

	if outcome != timeline.MergeDiscarded && result.Confidence < m.cfg.ConfidenceThreshold {
		metrics.LowConfidenceSegments.Inc()
	}

	return outcome, nil
}

// RunContinuous transcribes segment after segment starting at fromSec,
// skipping hand-edited segments. It stops at end-of-video, on context
// cancellation, or after two consecutive service failures.
func (m *Mediator) RunContinuous(ctx context.Context, fromSec float64) error {
	segLen := m.tl.SegmentLength()
	duration := m.tl.VideoDuration()

	failures := 0
	var lastErr error

	for start, _ := m.tl.SegmentBounds(fromSec); start < duration; start += segLen {
		if err := ctx.Err(); err != nil {
			return err
		}

		if seg, ok := m.tl.SegmentAt(start); ok && !seg.AutoGenerated && seg.Text != "" {
			// Hand-edited; never touched by the loop
			continue
		}

		if _, err := m.TranscribeSegment(ctx, start); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			lastErr = err
			if failures >= consecutiveFailureLimit {
				return fmt.Errorf("%w: %v", ErrServiceHalted, lastErr)
			}
			continue
		}
		failures = 0
	}

	return nil
}

// StartContinuous launches the continuous loop in the background
func (m *Mediator) StartContinuous(fromSec float64) error {
	m.mu.Lock()
	if m.loopRunning {
		m.mu.Unlock()
		return ErrLoopRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.loopRunning = true
	m.loopCancel = cancel
	done := make(chan struct{})
	m.loopDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		err := m.RunContinuous(ctx, fromSec)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.ErrorWithErr("continuous transcription stopped", err)
		}
		m.mu.Lock()
		m.loopRunning = false
		m.loopCancel = nil
		m.mu.Unlock()
	}()

	return nil
}

// StopContinuous cancels a running continuous loop and waits for it to
// wind down
func (m *Mediator) StopContinuous() {
	m.mu.Lock()
	cancel := m.loopCancel
	done := m.loopDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// ContinuousRunning reports whether the continuous loop is active
func (m *Mediator) ContinuousRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopRunning
}

// languageHint picks the service language hint for a segment window.
// Existing segments keep their language; empty slots default to mixed
// auto-detection, the mode the tool was built around.
func (m *Mediator) languageHint(start float64) timeline.Language {
	if seg, ok := m.tl.SegmentAt(start); ok {
		return seg.Language
	}
	return timeline.LanguageMixed
}

func (m *Mediator) isCurrent(start float64, requestID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[start] == requestID
}

func (m *Mediator) clearInflight(start float64, requestID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[start] == requestID {
		delete(m.inflight, start)
	}
}
