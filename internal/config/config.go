package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Media      MediaConfig
	Timeline   TimelineConfig
	Transcribe TranscribeConfig
	Render     RenderConfig
	Fonts      FontsConfig
	Project    ProjectConfig
	Storage    StorageConfig
}

// ServerConfig holds the local control API configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MediaConfig holds external media tooling configuration
type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
}

// TimelineConfig holds caption timeline configuration
type TimelineConfig struct {
	SegmentLength float64
}

// TranscribeConfig holds transcription configuration
type TranscribeConfig struct {
	Backend             string
	BinaryPath          string
	Model               string
	SampleRate          int
	ConfidenceThreshold float64
	RequestTimeout      time.Duration
}

// RenderConfig holds render configuration
type RenderConfig struct {
	Encoder      string
	AudioBitrate string
	FadeDuration float64
	CRF          int
	Preset       string
}

// FontsConfig holds font resolution configuration
type FontsConfig struct {
	Dir         string
	DefaultFont string
}

// ProjectConfig holds project session configuration
type ProjectConfig struct {
	DataDir string
}

// StorageConfig holds object storage configuration for publishing renders
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	LinkExpiry      time.Duration
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads configuration from configPath, falling back to
// built-in defaults when the file cannot be read.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}

	viper.Reset()
	setDefaults()
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8471)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output", "stdout")

	// Media defaults
	viper.SetDefault("media.ffmpegPath", "ffmpeg")
	viper.SetDefault("media.ffprobePath", "ffprobe")
	viper.SetDefault("media.tempDir", "/tmp/captionforge")

	// Timeline defaults
	viper.SetDefault("timeline.segmentLength", 5.0)

	// Transcribe defaults
	viper.SetDefault("transcribe.backend", "whisper-cli")
	viper.SetDefault("transcribe.binaryPath", "whisper-cli")
	viper.SetDefault("transcribe.model", "small")
	viper.SetDefault("transcribe.sampleRate", 16000)
	viper.SetDefault("transcribe.confidenceThreshold", 0.6)
	viper.SetDefault("transcribe.requestTimeout", "120s")

	// Render defaults
	viper.SetDefault("render.encoder", "")
	viper.SetDefault("render.audioBitrate", "192k")
	viper.SetDefault("render.fadeDuration", 0.5)
	viper.SetDefault("render.crf", 18)
	viper.SetDefault("render.preset", "fast")

	// Fonts defaults
	viper.SetDefault("fonts.dir", "fonts")
	viper.SetDefault("fonts.defaultFont", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf")

	// Project defaults
	viper.SetDefault("project.dataDir", "data")

	// Storage defaults
	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "renders")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)
	viper.SetDefault("storage.linkExpiry", "24h")
}
