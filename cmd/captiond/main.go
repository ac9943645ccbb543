package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/captionforge/captionforge/internal/api"
	"github.com/captionforge/captionforge/internal/config"
	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/media"
	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/project"
	"github.com/captionforge/captionforge/internal/render"
	"github.com/captionforge/captionforge/internal/storage"
	"github.com/captionforge/captionforge/internal/transcribe"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting captionforge daemon")

	// External media tooling
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	if err := ffmpeg.Check(context.Background()); err != nil {
		log.Fatalf("ffmpeg check failed: %v", err)
	}

	if err := os.MkdirAll(cfg.Project.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Preset store
	presets, err := preset.OpenStore(filepath.Join(cfg.Project.DataDir, "presets.json"))
	if err != nil {
		log.Fatalf("Failed to open preset store: %v", err)
	}

	// Project history
	store, err := project.OpenStore(filepath.Join(cfg.Project.DataDir, "history.db"))
	if err != nil {
		log.Fatalf("Failed to open project history: %v", err)
	}
	defer store.Close()

	// Transcription backend
	svc := transcribe.NewWhisperCLI(cfg.Transcribe.BinaryPath, cfg.Transcribe.Model)

	// Render builder
	fonts := preset.NewFontResolver(cfg.Fonts.Dir, cfg.Fonts.DefaultFont)
	builder := render.NewBuilder(presets, fonts)

	// Project session
	session := project.NewSession(cfg, log, ffmpeg, presets, svc, store, builder)

	// Optional publisher
	var publisher *storage.Publisher
	if cfg.Storage.Enabled {
		publisher, err = storage.New(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		log.Info("Render publishing enabled")
	}

	// Control API
	server := api.NewServer(cfg, log, session, presets, ffmpeg, store, publisher)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Control API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop any in-flight transcription loop before exit
	if proj, ok := session.Current(); ok {
		proj.Mediator.StopContinuous()
	}

	log.Info("Stopped")
}
