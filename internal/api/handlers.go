package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/captionforge/captionforge/internal/preset"
	"github.com/captionforge/captionforge/internal/project"
	"github.com/captionforge/captionforge/internal/render"
	"github.com/captionforge/captionforge/internal/timeline"
	"github.com/captionforge/captionforge/internal/transcribe"
)

// segmentView is the wire shape of one timeline segment
type segmentView struct {
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
	Text          string   `json:"text"`
	Preset        string   `json:"preset"`
	Language      string   `json:"language"`
	AutoGenerated bool     `json:"auto_generated"`
	Confidence    *float64 `json:"confidence,omitempty"`
	NeedsReview   bool     `json:"needs_review"`
}

func (s *Server) segmentView(seg timeline.Segment) segmentView {
	return segmentView{
		Start:         seg.Start,
		End:           seg.End,
		Text:          seg.Text,
		Preset:        seg.PresetID,
		Language:      string(seg.Language),
		AutoGenerated: seg.AutoGenerated,
		Confidence:    seg.Confidence,
		NeedsReview:   seg.NeedsReview(s.cfg.Transcribe.ConfidenceThreshold),
	}
}

// writeError maps domain errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	var overlapErr *timeline.OverlapError
	var validationErr *timeline.ValidationError
	var inUseErr *preset.InUseError

	switch {
	case errors.As(err, &overlapErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":          overlapErr.Error(),
			"existing_start": overlapErr.ExistingStart,
			"existing_end":   overlapErr.ExistingEnd,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &inUseErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":    inUseErr.Error(),
			"segments": inUseErr.Refs,
		})
	case errors.Is(err, timeline.ErrSegmentNotFound),
		errors.Is(err, preset.ErrNotFound),
		errors.Is(err, render.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, preset.ErrDefaultPreset):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, project.ErrNoProject),
		errors.Is(err, transcribe.ErrLoopRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// currentOrAbort returns the open project or writes a 409
func (s *Server) currentOrAbort(c *gin.Context) (*project.Project, bool) {
	proj, ok := s.session.Current()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": project.ErrNoProject.Error()})
		return nil, false
	}
	return proj, true
}

func queryTime(c *gin.Context) (float64, bool) {
	t, err := strconv.ParseFloat(c.Query("t"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter t must be a number"})
		return 0, false
	}
	return t, true
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.ffmpeg.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Project handlers

type openProjectRequest struct {
	VideoPath string `json:"video_path" binding:"required"`
}

func projectView(proj *project.Project) gin.H {
	return gin.H{
		"id":             proj.ID,
		"video_path":     proj.VideoPath,
		"title":          proj.Title(),
		"duration":       proj.Info.Duration,
		"width":          proj.Info.Width,
		"height":         proj.Info.Height,
		"segment_length": proj.Timeline.SegmentLength(),
		"opened_at":      proj.OpenedAt,
	}
}

func (s *Server) openProject(c *gin.Context) {
	var req openProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_path is required"})
		return
	}

	proj, err := s.session.Open(c.Request.Context(), req.VideoPath)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, projectView(proj))
}

func (s *Server) saveProject(c *gin.Context) {
	if err := s.session.Save(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (s *Server) closeProject(c *gin.Context) {
	if err := s.session.Close(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (s *Server) currentProject(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, projectView(proj))
}

func (s *Server) recentProjects(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "project history is disabled"})
		return
	}
	records, err := s.store.RecentProjects(c.Request.Context(), 20)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": records})
}

// Timeline handlers

func (s *Server) getTimeline(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	segments := proj.Timeline.Segments()
	views := make([]segmentView, len(segments))
	for i, seg := range segments {
		views[i] = s.segmentView(seg)
	}
	c.JSON(http.StatusOK, gin.H{
		"segments":       views,
		"segment_length": proj.Timeline.SegmentLength(),
		"video_duration": proj.Timeline.VideoDuration(),
	})
}

func (s *Server) getSegment(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	t, ok := queryTime(c)
	if !ok {
		return
	}

	seg, found := proj.Timeline.SegmentAt(t)
	if !found {
		writeError(c, timeline.ErrSegmentNotFound)
		return
	}
	c.JSON(http.StatusOK, s.segmentView(seg))
}

type upsertSegmentRequest struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Preset   string  `json:"preset"`
	Language string  `json:"language"`
}

func (s *Server) upsertSegment(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	var req upsertSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lang, err := timeline.ParseLanguage(req.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seg := timeline.Segment{
		Start:    req.Start,
		End:      req.End,
		Text:     req.Text,
		PresetID: req.Preset,
		Language: lang,
	}
	if err := proj.Timeline.Upsert(seg); err != nil {
		writeError(c, err)
		return
	}

	stored, _ := proj.Timeline.SegmentAt(req.Start)
	c.JSON(http.StatusOK, s.segmentView(stored))
}

type setTextRequest struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

func (s *Server) setSegmentText(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	var req setTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := proj.Timeline.SetText(req.Time, req.Text); err != nil {
		writeError(c, err)
		return
	}

	seg, _ := proj.Timeline.SegmentAt(req.Time)
	c.JSON(http.StatusOK, s.segmentView(seg))
}

func (s *Server) deleteSegment(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	t, ok := queryTime(c)
	if !ok {
		return
	}

	if err := proj.Timeline.Delete(t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Preset handlers

func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.presets.List()})
}

func (s *Server) createPreset(c *gin.Context) {
	var def preset.Preset
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.presets.Create(def)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, _ := s.presets.Get(id)
	c.JSON(http.StatusCreated, created)
}

func (s *Server) getPreset(c *gin.Context) {
	def, err := s.presets.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) updatePreset(c *gin.Context) {
	var def preset.Preset
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.presets.Update(c.Param("id"), def); err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, _ := s.presets.Get(c.Param("id"))
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deletePreset(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := s.presets.Delete(c.Param("id"), force); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Transcription handlers

type transcribeSegmentRequest struct {
	Time float64 `json:"time"`
}

func (s *Server) transcribeSegment(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	var req transcribeSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, end := proj.Timeline.SegmentBounds(req.Time)
	if end-start <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time is beyond end of video"})
		return
	}

	// Fire and forget; the result merges through the generation-token
	// contract and the UI polls the timeline for it
	go func() {
		if _, err := proj.Mediator.TranscribeSegment(context.Background(), start); err != nil {
			s.log.WithSegment(start, end).ErrorWithErr("transcription request failed", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "requested", "start": start, "end": end})
}

type startContinuousRequest struct {
	From float64 `json:"from"`
}

func (s *Server) startContinuous(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	var req startContinuousRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := proj.Mediator.StartContinuous(req.From); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "from": req.From})
}

func (s *Server) stopContinuous(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	proj.Mediator.StopContinuous()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) transcribeStatus(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"continuous_running": proj.Mediator.ContinuousRunning()})
}

// Render handlers

type startRenderRequest struct {
	OutputPath string `json:"output_path" binding:"required"`
	Width      int    `json:"width" binding:"required"`
	Height     int    `json:"height" binding:"required"`
	Mode       string `json:"mode"`
	Encoder    string `json:"encoder"`
}

func (s *Server) startRender(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	var req startRenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := render.ParseScalingMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := proj.Render.Start(c.Request.Context(), render.JobSpec{
		SourcePath: proj.VideoPath,
		OutputPath: req.OutputPath,
		Target:     render.Geometry{Width: req.Width, Height: req.Height},
		Mode:       mode,
		Encoder:    req.Encoder,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) listRenderJobs(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": proj.Render.Jobs()})
}

func (s *Server) renderHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "render history is disabled"})
		return
	}
	records, err := s.store.RenderHistory(c.Request.Context(), 50)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

func (s *Server) getRenderJob(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	job, err := proj.Render.Progress(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelRenderJob(c *gin.Context) {
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}
	if err := proj.Render.Cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (s *Server) publishRender(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publishing is disabled"})
		return
	}
	proj, ok := s.currentOrAbort(c)
	if !ok {
		return
	}

	job, err := proj.Render.Progress(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.State != render.StateCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "render job is not completed"})
		return
	}

	url, err := s.publisher.Publish(c.Request.Context(), filepath.Base(job.OutputPath), job.OutputPath)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
