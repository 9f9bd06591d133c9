package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/gallery"
	"github.com/kozaktomas/face-recognizer/internal/metrics"
)

// CaptureResult describes a successful capture.
type CaptureResult struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Box     Box     `json:"box"`
	Score   float64 `json:"score"`
	Faces   int     `json:"faces"`
	Warning Warning `json:"warning,omitempty"`
}

// CaptureOptions configures a CaptureFlow.
type CaptureOptions struct {
	Profile Profile
	Logger  zerolog.Logger
}

// CaptureFlow enrolls the face currently in front of the camera under a label.
type CaptureFlow struct {
	mu      sync.Mutex
	source  VideoSource
	engine  Engine
	gallery Gallery
	session *Session
	profile Profile
	log     zerolog.Logger
}

// NewCaptureFlow creates a capture flow that pauses session while it runs.
func NewCaptureFlow(source VideoSource, engine Engine, g Gallery, session *Session, opts CaptureOptions) *CaptureFlow {
	if opts.Profile.Name == "" {
		opts.Profile = AccurateProfile()
	}
	return &CaptureFlow{
		source:  source,
		engine:  engine,
		gallery: g,
		session: session,
		profile: opts.Profile,
		log:     opts.Logger,
	}
}

// Capture pauses the session, runs one accurate detection over the current
// frame and binds the best face's signature to label. The session is returned
// to its prior state whatever the outcome. Captures run one at a time.
func (c *CaptureFlow) Capture(ctx context.Context, label string) (*CaptureResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		metrics.RecordCapture("invalid_input")
		return nil, fmt.Errorf("label is empty: %w", ErrInvalidInput)
	}
	if !c.source.Active() {
		metrics.RecordCapture("invalid_input")
		return nil, fmt.Errorf("video source is not active: %w", ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	log := c.log.With().Str("capture_id", id).Str("label", label).Logger()

	wasRunning, err := c.session.Pause(ctx)
	defer c.session.Resume()
	if err != nil {
		return nil, err
	}
	log.Debug().Bool("was_running", wasRunning).Msg("session paused for capture")

	result, err := c.detectBest(ctx, log)
	if err != nil {
		return nil, err
	}
	result.ID = id
	result.Label = label
	if result.Warning != "" {
		c.session.Events().Publish(Event{Type: EventWarning, Message: string(result.Warning), Data: result.CaptureResult})
	}

	if err := c.gallery.AddOrUpdate(ctx, label, result.signature); err != nil {
		metrics.RecordCapture("invalid_input")
		return nil, fmt.Errorf("storing face: %w", err)
	}

	metrics.RecordCapture("stored")
	log.Info().Float64("score", result.Score).Int("faces", result.Faces).Msg("face captured")
	return &result.CaptureResult, nil
}

type captured struct {
	CaptureResult
	signature gallery.Signature
}

// detectBest picks the highest scoring face of the current frame, the first
// one on ties.
func (c *CaptureFlow) detectBest(ctx context.Context, log zerolog.Logger) (*captured, error) {
	if !c.source.Ready() {
		metrics.RecordCapture("invalid_input")
		return nil, fmt.Errorf("video source has no frame yet: %w", ErrInvalidInput)
	}
	frame, err := c.source.Frame(ctx)
	if err != nil {
		metrics.RecordCapture("invalid_input")
		return nil, fmt.Errorf("reading frame: %w: %w", ErrInvalidInput, err)
	}

	start := time.Now()
	detections, err := c.engine.Detect(ctx, frame, c.profile)
	metrics.RecordDetection(c.profile.Name, time.Since(start), err)
	if err != nil {
		metrics.RecordCapture("inference_error")
		log.Warn().Err(err).Msg("capture detection failed")
		if errors.Is(err, ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	detections = filterConfidence(detections, c.profile.MinConfidence)
	if len(detections) == 0 {
		metrics.RecordCapture("no_face")
		return nil, ErrNoFaceDetected
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Score > best.Score {
			best = d
		}
	}

	out := &captured{
		CaptureResult: CaptureResult{Box: best.Box, Score: best.Score, Faces: len(detections)},
		signature:     best.Signature,
	}
	if len(detections) > 1 {
		out.Warning = WarningMultipleFaces
		log.Warn().Int("faces", len(detections)).Msg("multiple faces detected, using the most confident one")
	}
	return out, nil
}
