package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/captionforge/captionforge/internal/config"
	"github.com/captionforge/captionforge/internal/logging"
	"github.com/captionforge/captionforge/internal/media"
	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/project"
	"github.com/captionforge/captionforge/internal/storage"
)

// Server is the local control API for the captioning engine. It drives the
// project session, timeline, presets, transcription, and render jobs on
// behalf of a UI or scripting client.
type Server struct {
	cfg       *config.Config
	log       *logging.Logger
	session   *project.Session
	presets   *preset.Store
	ffmpeg    *media.FFmpeg
	store     *project.Store
	publisher *storage.Publisher
	router    *gin.Engine
}

// NewServer wires the control API routes. store and publisher may be nil
// when history or publishing is disabled.
func NewServer(cfg *config.Config, log *logging.Logger, session *project.Session, presets *preset.Store, ffmpeg *media.FFmpeg, store *project.Store, publisher *storage.Publisher) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		session:   session,
		presets:   presets,
		ffmpeg:    ffmpeg,
		store:     store,
		publisher: publisher,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the control API
func (s *Server) Handler() *gin.Engine {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.log), Metrics())

	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Project lifecycle
		v1.POST("/project/open", s.openProject)
		v1.POST("/project/save", s.saveProject)
		v1.POST("/project/close", s.closeProject)
		v1.GET("/project", s.currentProject)
		v1.GET("/projects/recent", s.recentProjects)

		// Timeline
		v1.GET("/timeline", s.getTimeline)
		v1.GET("/timeline/segment", s.getSegment)
		v1.PUT("/timeline/segment", s.upsertSegment)
		v1.POST("/timeline/segment/text", s.setSegmentText)
		v1.DELETE("/timeline/segment", s.deleteSegment)

		// Presets
		v1.GET("/presets", s.listPresets)
		v1.POST("/presets", s.createPreset)
		v1.GET("/presets/:id", s.getPreset)
		v1.PUT("/presets/:id", s.updatePreset)
		v1.DELETE("/presets/:id", s.deletePreset)

		// Transcription
		v1.POST("/transcribe/segment", s.transcribeSegment)
		v1.POST("/transcribe/auto", s.startContinuous)
		v1.POST("/transcribe/stop", s.stopContinuous)
		v1.GET("/transcribe/status", s.transcribeStatus)

		// Render
		v1.POST("/render", s.startRender)
		v1.GET("/renders", s.listRenderJobs)
		v1.GET("/renders/history", s.renderHistory)
		v1.GET("/render/:id", s.getRenderJob)
		v1.POST("/render/:id/cancel", s.cancelRenderJob)
		v1.POST("/render/:id/publish", s.publishRender)
	}

	return router
}
