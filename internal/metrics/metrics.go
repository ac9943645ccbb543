package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captionforge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Transcription metrics
	TranscriptionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionforge_transcription_requests_total",
			Help: "Total number of transcription requests by merge outcome",
		},
		[]string{"backend", "outcome"},
	)

	TranscriptionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "captionforge_transcription_duration_seconds",
			Help:    "Transcription service round-trip duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		},
	)

	TranscriptionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "captionforge_transcriptions_in_flight",
			Help: "Number of transcription requests currently in flight",
		},
	)

	LowConfidenceSegments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captionforge_low_confidence_segments_total",
			Help: "Number of merged results below the review threshold",
		},
	)

	// Render metrics
	RenderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionforge_render_jobs_total",
			Help: "Total number of render jobs by terminal state",
		},
		[]string{"state"},
	)

	RenderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "captionforge_render_jobs_in_progress",
			Help: "Number of render jobs currently running",
		},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captionforge_render_duration_seconds",
			Help:    "Render job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"encoder"},
	)

	RenderInstructions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "captionforge_render_instructions",
			Help:    "Number of caption instructions per render job",
			Buckets: prometheus.LinearBuckets(0, 25, 10),
		},
	)

	FontFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captionforge_font_fallbacks_total",
			Help: "Number of render instructions that fell back to the default font",
		},
	)
)
