// Package metrics exposes the Prometheus instrumentation of the recognizer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes.
const (
	OutcomeEmitted     = "emitted"
	OutcomeNotReady    = "not_ready"
	OutcomeBusy        = "busy"
	OutcomeEngineError = "engine_error"
	OutcomeDiscarded   = "discarded"
)

var (
	// Session Metrics
	SessionTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_session_ticks_total",
			Help: "Total number of recognition ticks by outcome",
		},
		[]string{"outcome"}, // "emitted", "not_ready", "busy", "engine_error", "discarded"
	)

	SessionRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recognizer_session_running",
			Help: "1 while the recognition session is running",
		},
	)

	FacesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_faces_detected_total",
			Help: "Total number of faces labeled by the session",
		},
		[]string{"known"}, // "true", "false"
	)

	// Engine Metrics
	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recognizer_detection_duration_seconds",
			Help:    "Face engine detection latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"profile"},
	)

	EngineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_engine_errors_total",
			Help: "Total number of failed face engine calls",
		},
		[]string{"profile"},
	)

	EngineBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recognizer_engine_breaker_state",
			Help: "Face engine circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Capture Metrics
	Captures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_captures_total",
			Help: "Total number of capture attempts by result",
		},
		[]string{"result"}, // "stored", "invalid_input", "no_face", "inference_error"
	)

	// Gallery Metrics
	GalleryLabels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recognizer_gallery_labels",
			Help: "Current number of labels in the gallery",
		},
	)

	PersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recognizer_gallery_persist_errors_total",
			Help: "Total number of failed gallery writes",
		},
	)

	// Video Metrics
	FramesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_frames_captured_total",
			Help: "Total number of frames read from the video source",
		},
		[]string{"source"},
	)

	FrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_frame_errors_total",
			Help: "Total number of frames that could not be fetched or decoded",
		},
		[]string{"source"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recognizer_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)
)

// RecordTick counts one session tick with the given outcome.
func RecordTick(outcome string) {
	SessionTicks.WithLabelValues(outcome).Inc()
}

// RecordDetection records the latency of one engine call and counts failures.
func RecordDetection(profile string, duration time.Duration, err error) {
	DetectionDuration.WithLabelValues(profile).Observe(duration.Seconds())
	if err != nil {
		EngineErrors.WithLabelValues(profile).Inc()
	}
}

// RecordFaces counts labeled faces, split by whether they matched the gallery.
func RecordFaces(known, unknown int) {
	if known > 0 {
		FacesDetected.WithLabelValues("true").Add(float64(known))
	}
	if unknown > 0 {
		FacesDetected.WithLabelValues("false").Add(float64(unknown))
	}
}

// RecordCapture counts one capture attempt.
func RecordCapture(result string) {
	Captures.WithLabelValues(result).Inc()
}

// RecordAPIRequest counts one API request.
func RecordAPIRequest(method, route string, status int) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
