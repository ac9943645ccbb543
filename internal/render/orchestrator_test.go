package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/media"
	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/timeline"
)

type fakeEngine struct {
	info     *media.VideoInfo
	encoders map[string]bool
}

func (f *fakeEngine) Probe(ctx context.Context, inputPath string) (*media.VideoInfo, error) {
	if f.info == nil {
		return nil, errors.New("probe failed")
	}
	return f.info, nil
}

func (f *fakeEngine) EncoderAvailable(ctx context.Context, encoder string) bool {
	return f.encoders[encoder]
}

func (f *fakeEngine) FFmpegPath() string { return "ffmpeg" }

// fakeRunner emits scripted progress and optionally writes the partial
// output file (last arg) the way ffmpeg would
type fakeRunner struct {
	mu          sync.Mutex
	args        []string
	writeOutput bool
	err         error
	block       bool
}

func (f *fakeRunner) Run(ctx context.Context, args []string, totalDuration float64, onProgress func(float64)) error {
	f.mu.Lock()
	f.args = args
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}

	onProgress(50)
	if f.writeOutput {
		if err := os.WriteFile(args[len(args)-1], []byte("video"), 0644); err != nil {
			return err
		}
	}
	onProgress(100)
	return nil
}

func (f *fakeRunner) lastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args
}

func newTestOrchestrator(t *testing.T, runner Runner, engine Engine) (*Orchestrator, *timeline.Timeline) {
	t.Helper()
	tl := timeline.New(5.0, 12.0)
	store := preset.NewStore(filepath.Join(t.TempDir(), "presets.json"))
	fonts := preset.NewFontResolver(t.TempDir(), "/usr/share/fonts/default.ttf")
	builder := NewBuilder(store, fonts)
	o := NewOrchestrator(tl, builder, engine, runner, nil, logging.Nop(), Options{})
	return o, tl
}

func waitTerminal(t *testing.T, o *Orchestrator, jobID string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, err := o.Progress(jobID)
		if err != nil {
			return false
		}
		job = j
		return job.State != StateRunning
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func landscapeEngine() *fakeEngine {
	return &fakeEngine{info: &media.VideoInfo{Duration: 12, Width: 1920, Height: 1080, Codec: "h264"}}
}

func TestOrchestratorStart(t *testing.T) {
	t.Run("CompletesAndRenamesOutput", func(t *testing.T) {
		runner := &fakeRunner{writeOutput: true}
		o, tl := newTestOrchestrator(t, runner, landscapeEngine())
		require.NoError(t, tl.SetText(0, "hello"))

		output := filepath.Join(t.TempDir(), "out.mp4")
		jobID, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: output,
			Target:     Geometry{Width: 1920, Height: 1080},
			Mode:       ScaleContain,
		})
		require.NoError(t, err)

		job := waitTerminal(t, o, jobID)
		assert.Equal(t, StateCompleted, job.State)
		assert.Equal(t, 100.0, job.Progress)
		assert.Equal(t, 1, job.Instructions)

		_, statErr := os.Stat(output)
		assert.NoError(t, statErr)

		// No partial file left behind
		leftovers, _ := filepath.Glob(output + ".partial.*")
		assert.Empty(t, leftovers)
	})

	t.Run("NoHardwareEncoderFallsBackToSoftware", func(t *testing.T) {
		runner := &fakeRunner{writeOutput: true}
		o, _ := newTestOrchestrator(t, runner, landscapeEngine())

		output := filepath.Join(t.TempDir(), "out.mp4")
		jobID, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: output,
			Target:     Geometry{Width: 1280, Height: 720},
		})
		require.NoError(t, err)

		job := waitTerminal(t, o, jobID)
		assert.Equal(t, "libx264", job.Encoder)
		assert.Contains(t, runner.lastArgs(), "libx264")
		assert.Contains(t, runner.lastArgs(), "-crf")
	})

	t.Run("HardwareEncoderPreferred", func(t *testing.T) {
		engine := landscapeEngine()
		engine.encoders = map[string]bool{"h264_nvenc": true}
		runner := &fakeRunner{writeOutput: true}
		o, _ := newTestOrchestrator(t, runner, engine)

		jobID, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
			Target:     Geometry{Width: 1280, Height: 720},
		})
		require.NoError(t, err)

		job := waitTerminal(t, o, jobID)
		assert.Equal(t, "h264_nvenc", job.Encoder)
	})

	t.Run("FailureRemovesPartialOutput", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("encoder exploded")}
		o, _ := newTestOrchestrator(t, runner, landscapeEngine())

		output := filepath.Join(t.TempDir(), "out.mp4")
		jobID, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: output,
			Target:     Geometry{Width: 1280, Height: 720},
		})
		require.NoError(t, err)

		job := waitTerminal(t, o, jobID)
		assert.Equal(t, StateFailed, job.State)
		assert.Contains(t, job.Error, "encoder exploded")

		_, statErr := os.Stat(output)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("MissingOutputIsFailure", func(t *testing.T) {
		// Runner reports success but writes nothing
		runner := &fakeRunner{writeOutput: false}
		o, _ := newTestOrchestrator(t, runner, landscapeEngine())

		jobID, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
			Target:     Geometry{Width: 1280, Height: 720},
		})
		require.NoError(t, err)

		job := waitTerminal(t, o, jobID)
		assert.Equal(t, StateFailed, job.State)
	})

	t.Run("ProbeFailure", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &fakeRunner{}, &fakeEngine{})

		_, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
			Target:     Geometry{Width: 1280, Height: 720},
		})
		require.Error(t, err)

		var renderErr *RenderError
		require.ErrorAs(t, err, &renderErr)
		assert.Equal(t, "probe", renderErr.Stage)
	})

	t.Run("InvalidGeometry", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &fakeRunner{}, landscapeEngine())
		_, err := o.Start(context.Background(), JobSpec{
			SourcePath: "/videos/in.mp4",
			OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
		})
		assert.Error(t, err)
	})
}

func TestOrchestratorCancel(t *testing.T) {
	runner := &fakeRunner{block: true}
	o, _ := newTestOrchestrator(t, runner, landscapeEngine())

	output := filepath.Join(t.TempDir(), "out.mp4")
	jobID, err := o.Start(context.Background(), JobSpec{
		SourcePath: "/videos/in.mp4",
		OutputPath: output,
		Target:     Geometry{Width: 1280, Height: 720},
	})
	require.NoError(t, err)

	// Wait for the runner to be inside Run before cancelling
	require.Eventually(t, func() bool {
		return runner.lastArgs() != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, o.Cancel(jobID))

	job := waitTerminal(t, o, jobID)
	assert.Equal(t, StateCancelled, job.State)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))

	// Cancelling a finished job is an error
	assert.Error(t, o.Cancel(jobID))
	assert.ErrorIs(t, o.Cancel("nope"), ErrJobNotFound)
}

func TestOrchestratorJobs(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	o, _ := newTestOrchestrator(t, runner, landscapeEngine())

	dir := t.TempDir()
	first, err := o.Start(context.Background(), JobSpec{
		SourcePath: "/videos/in.mp4",
		OutputPath: filepath.Join(dir, "a.mp4"),
		Target:     Geometry{Width: 1280, Height: 720},
	})
	require.NoError(t, err)
	waitTerminal(t, o, first)

	second, err := o.Start(context.Background(), JobSpec{
		SourcePath: "/videos/in.mp4",
		OutputPath: filepath.Join(dir, "b.mp4"),
		Target:     Geometry{Width: 1280, Height: 720},
	})
	require.NoError(t, err)
	waitTerminal(t, o, second)

	jobs := o.Jobs()
	require.Len(t, jobs, 2)
}
