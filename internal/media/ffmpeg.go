package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg wraps the external ffmpeg/ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoInfo holds source video information extracted from ffprobe
type VideoInfo struct {
	Duration  float64
	Width     int
	Height    int
	Codec     string
	FrameRate float64
}

// Check verifies that ffmpeg is installed and accessible
func (f *FFmpeg) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", f.ffmpegPath, err)
	}
	return nil
}

// probeOutput mirrors the ffprobe JSON we ask for
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe extracts duration and geometry from a video file
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*VideoInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput turns ffprobe JSON into VideoInfo
func parseProbeOutput(data []byte) (*VideoInfo, error) {
	var parsed probeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}

	if duration, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = duration
	}

	for _, stream := range parsed.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
			break
		}
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("no video stream found")
	}

	return info, nil
}

// parseFrameRate parses ffprobe's "num/den" frame rate notation
func parseFrameRate(rate string) float64 {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

// ExtractAudio extracts the full audio track as PCM WAV for playback and
// windowed transcription
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio extraction failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// ExtractAudioWindow extracts one segment's audio window downsampled to
// what the transcription service consumes (16 kHz mono by default)
func (f *FFmpeg) ExtractAudioWindow(ctx context.Context, inputPath string, startSec, duration float64, sampleRate int, outputPath string) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	args := []string{
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio window extraction failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// ExtractFrame extracts a single preview frame at a specific time
func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath string, timeSec float64, outputPath string) error {
	args := []string{
		"-ss", fmt.Sprintf("%.3f", timeSec),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("frame extraction failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// EncoderAvailable reports whether a specific encoder is compiled into the
// ffmpeg build
func (f *FFmpeg) EncoderAvailable(ctx context.Context, encoder string) bool {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-encoders")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return false
	}
	return strings.Contains(stdout.String(), encoder)
}

// FFmpegPath returns the configured ffmpeg binary path
func (f *FFmpeg) FFmpegPath() string {
	return f.ffmpegPath
}
