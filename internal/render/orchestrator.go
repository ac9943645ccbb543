package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/media"
	"github.com/captionforge/captionforge/internal/metrics"
	"github.com/captionforge/captionforge/internal/timeline"
)

// Job states
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// encoderChain is the hardware encoder preference order, ending in the
// software fallback that is always present
var encoderChain = []string{"h264_nvenc", "h264_amf", "h264_qsv", "libx264"}

// RenderError is a render failure tagged with the stage that produced it
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s failed: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ErrJobNotFound is returned for unknown job ids
var ErrJobNotFound = fmt.Errorf("render job not found")

// JobSpec describes one render request
type JobSpec struct {
	SourcePath string
	OutputPath string
	Target     Geometry
	Mode       ScalingMode
	Encoder    string // empty selects from the fallback chain
}

// Job is the observable state of a render job
type Job struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Progress     float64   `json:"progress"`
	Error        string    `json:"error,omitempty"`
	OutputPath   string    `json:"output_path"`
	Encoder      string    `json:"encoder"`
	Instructions int       `json:"instructions"`
	Warnings     []Warning `json:"warnings,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Runner executes the codec engine command and streams progress as a
// percentage. Injected so tests run without ffmpeg.
type Runner interface {
	Run(ctx context.Context, args []string, totalDuration float64, onProgress func(float64)) error
}

// Engine is the slice of the media layer the orchestrator needs.
// *media.FFmpeg satisfies it.
type Engine interface {
	Probe(ctx context.Context, inputPath string) (*media.VideoInfo, error)
	EncoderAvailable(ctx context.Context, encoder string) bool
	FFmpegPath() string
}

// JobRecorder persists render job rows for project history. Optional.
type JobRecorder interface {
	RecordRenderJob(ctx context.Context, id, sourcePath, outputPath, encoder string) error
	UpdateRenderJob(ctx context.Context, id, state string, progress float64, errMsg string) error
}

// Options configures an Orchestrator
type Options struct {
	Encoder      string // preferred encoder, empty probes the chain
	CRF          int
	Preset       string
	AudioBitrate string
}

// Orchestrator runs render jobs against the external codec engine. Each
// job snapshots the timeline at start, compiles instructions, and writes
// to a temporary path that is renamed onto the output only on verified
// success, so a failed or cancelled job never leaves a partial output.
type Orchestrator struct {
	tl       *timeline.Timeline
	builder  *Builder
	ffmpeg   Engine
	runner   Runner
	recorder JobRecorder
	log      *logging.Logger
	opts     Options

	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
}

// NewOrchestrator creates a render orchestrator. A nil runner uses the
// real ffmpeg runner; a nil recorder disables job history.
func NewOrchestrator(tl *timeline.Timeline, builder *Builder, ffmpeg Engine, runner Runner, recorder JobRecorder, log *logging.Logger, opts Options) *Orchestrator {
	if runner == nil {
		runner = &ffmpegRunner{ffmpegPath: ffmpeg.FFmpegPath()}
	}
	if opts.CRF <= 0 {
		opts.CRF = 18
	}
	if opts.Preset == "" {
		opts.Preset = "fast"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192k"
	}
	return &Orchestrator{
		tl:       tl,
		builder:  builder,
		ffmpeg:   ffmpeg,
		runner:   runner,
		recorder: recorder,
		log:      log,
		opts:     opts,
		jobs:     make(map[string]*jobState),
	}
}

// Start launches a render job and returns its id. The job runs in its own
// goroutine; poll Progress or the job list for completion.
func (o *Orchestrator) Start(ctx context.Context, spec JobSpec) (string, error) {
	if !spec.Target.Valid() {
		return "", fmt.Errorf("invalid target geometry %dx%d", spec.Target.Width, spec.Target.Height)
	}
	mode, err := ParseScalingMode(string(spec.Mode))
	if err != nil {
		return "", err
	}
	spec.Mode = mode

	info, err := o.ffmpeg.Probe(ctx, spec.SourcePath)
	if err != nil {
		return "", &RenderError{Stage: "probe", Err: err}
	}

	encoder := spec.Encoder
	if encoder == "" {
		encoder = o.selectEncoder(ctx)
	}

	// Snapshot now; mid-render edits must not change the instruction set
	snapshot := o.tl.Snapshot()
	src := Geometry{Width: info.Width, Height: info.Height}
	instructions, warnings := o.builder.Build(snapshot, src, spec.Target, spec.Mode)
	metrics.RenderInstructions.Observe(float64(len(instructions)))

	jobID := uuid.New().String()
	jobCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.jobs[jobID] = &jobState{
		job: Job{
			ID:           jobID,
			State:        StateRunning,
			OutputPath:   spec.OutputPath,
			Encoder:      encoder,
			Instructions: len(instructions),
			Warnings:     warnings,
			StartedAt:    time.Now(),
		},
		cancel: cancel,
	}
	o.mu.Unlock()

	if o.recorder != nil {
		if err := o.recorder.RecordRenderJob(ctx, jobID, spec.SourcePath, spec.OutputPath, encoder); err != nil {
			o.log.WithJobID(jobID).ErrorWithErr("failed to record render job", err)
		}
	}

	metrics.RenderJobsInProgress.Inc()
	go o.run(jobCtx, jobID, spec, encoder, instructions, info.Duration)

	return jobID, nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, spec JobSpec, encoder string, instructions []Instruction, duration float64) {
	defer metrics.RenderJobsInProgress.Dec()

	log := o.log.WithJobID(jobID)
	partialPath := fmt.Sprintf("%s.partial.%s", spec.OutputPath, jobID)

	args := o.buildArgs(spec, encoder, instructions)
	args = append(args, partialPath)

	started := time.Now()
	err := o.runner.Run(ctx, args, duration, func(progress float64) {
		o.setProgress(jobID, progress)
		log.LogRenderProgress(jobID, progress)
	})

	if err != nil {
		os.Remove(partialPath)
		if ctx.Err() != nil {
			o.finish(jobID, StateCancelled, "")
			log.Info("render cancelled")
			return
		}
		o.finish(jobID, StateFailed, err.Error())
		log.ErrorWithErr("render failed", err)
		return
	}

	// Verify before publishing the output path
	if fi, statErr := os.Stat(partialPath); statErr != nil || fi.Size() == 0 {
		os.Remove(partialPath)
		o.finish(jobID, StateFailed, "codec engine produced no output")
		log.Error("render produced no output")
		return
	}

	if renameErr := os.Rename(partialPath, spec.OutputPath); renameErr != nil {
		os.Remove(partialPath)
		o.finish(jobID, StateFailed, renameErr.Error())
		log.ErrorWithErr("failed to move render output into place", renameErr)
		return
	}

	metrics.RenderDuration.WithLabelValues(encoder).Observe(time.Since(started).Seconds())
	o.finish(jobID, StateCompleted, "")
	log.Infof("render completed in %s", time.Since(started).Round(time.Second))
}

// buildArgs assembles the codec engine invocation minus the output path
func (o *Orchestrator) buildArgs(spec JobSpec, encoder string, instructions []Instruction) []string {
	args := []string{
		"-i", spec.SourcePath,
		"-y",
		"-vf", FilterGraph(instructions, spec.Target, spec.Mode),
		"-c:v", encoder,
	}

	if encoder == "libx264" {
		args = append(args, "-crf", strconv.Itoa(o.opts.CRF), "-preset", o.opts.Preset)
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", o.opts.AudioBitrate,
		"-progress", "pipe:1",
		"-f", "mp4",
	)

	return args
}

// selectEncoder probes the hardware encoder chain and falls back to
// software encoding when none is available
func (o *Orchestrator) selectEncoder(ctx context.Context) string {
	if o.opts.Encoder != "" {
		return o.opts.Encoder
	}
	for _, enc := range encoderChain {
		if enc == "libx264" || o.ffmpeg.EncoderAvailable(ctx, enc) {
			return enc
		}
	}
	return "libx264"
}

// Progress returns the observable state of a job
func (o *Orchestrator) Progress(jobID string) (Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return state.job, nil
}

// Cancel requests termination of a running job. The codec process is
// killed and the partial output removed; completed jobs are unaffected.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return ErrJobNotFound
	}
	if state.job.State != StateRunning {
		o.mu.Unlock()
		return fmt.Errorf("job %s is %s, not running", jobID, state.job.State)
	}
	cancel := state.cancel
	o.mu.Unlock()

	cancel()
	return nil
}

// Jobs lists all known jobs, newest first
func (o *Orchestrator) Jobs() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	jobs := make([]Job, 0, len(o.jobs))
	for _, state := range o.jobs {
		jobs = append(jobs, state.job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

func (o *Orchestrator) setProgress(jobID string, progress float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.jobs[jobID]; ok && state.job.State == StateRunning {
		state.job.Progress = progress
	}
}

func (o *Orchestrator) finish(jobID string, terminal string, errMsg string) {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	if ok {
		state.job.State = terminal
		state.job.Error = errMsg
		state.job.FinishedAt = time.Now()
		if terminal == StateCompleted {
			state.job.Progress = 100
		}
	}
	var progress float64
	if ok {
		progress = state.job.Progress
	}
	o.mu.Unlock()

	metrics.RenderJobsTotal.WithLabelValues(terminal).Inc()

	if o.recorder != nil && ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.recorder.UpdateRenderJob(ctx, jobID, terminal, progress, errMsg); err != nil {
			o.log.WithJobID(jobID).ErrorWithErr("failed to update render job record", err)
		}
	}
}

// ffmpegRunner executes ffmpeg and parses the -progress pipe:1 stream
type ffmpegRunner struct {
	ffmpegPath string
}

var progressRegex = regexp.MustCompile(`out_time_ms=(\d+)`)

func (r *ffmpegRunner) Run(ctx context.Context, args []string, totalDuration float64, onProgress func(float64)) error {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if matches := progressRegex.FindStringSubmatch(scanner.Text()); len(matches) > 1 {
				if timeMs, err := strconv.ParseFloat(matches[1], 64); err == nil && totalDuration > 0 {
					progress := (timeMs / 1000000.0 / totalDuration) * 100
					if progress > 100 {
						progress = 100
					}
					if onProgress != nil {
						onProgress(progress)
					}
				}
			}
		}
	}()

	var stderrBuf bytes.Buffer
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrBuf.WriteString(scanner.Text() + "\n")
		}
	}()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderrBuf.String())
	}

	return nil
}
