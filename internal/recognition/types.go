// Package recognition drives face recognition over a live video source: the
// polling session that labels every frame and the capture flow that enrolls a
// face into the gallery.
package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/gallery"
)

// Common errors.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoFaceDetected = errors.New("no face detected")
	ErrInference      = errors.New("face inference failed")
)

// Warning is an advisory signal. It never fails an operation.
type Warning string

// WarningMultipleFaces is set when a capture saw more than one face and kept the best one.
const WarningMultipleFaces Warning = "multiple_faces_detected"

// Profile names.
const (
	ProfileFast     = "fast"
	ProfileAccurate = "accurate"
)

// Profile selects the engine's speed/accuracy trade-off.
type Profile struct {
	Name          string
	InputSize     int     // longest side, in pixels, the frame is scaled down to
	MinConfidence float64 // detections scoring below are dropped
}

// FastProfile is the low-latency profile used by the polling session.
func FastProfile() Profile {
	return Profile{Name: ProfileFast, InputSize: constants.DefaultFastInputSize, MinConfidence: constants.DefaultMinConfidence}
}

// AccurateProfile is the high-accuracy profile used by captures.
func AccurateProfile() Profile {
	return Profile{Name: ProfileAccurate, InputSize: constants.DefaultAccurateInputSize, MinConfidence: constants.DefaultMinConfidence}
}

// Box is a face bounding box in source-frame pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one face reported by the engine.
type Detection struct {
	Box       Box
	Score     float64 // detector confidence
	Signature gallery.Signature
}

// Frame is one still taken from a video source, JPEG encoded.
type Frame struct {
	Seq        uint64
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// DetectionResult is one labeled face of a frame.
type DetectionResult struct {
	Box      Box      `json:"box"`
	Label    string   `json:"label"`
	Known    bool     `json:"known"`
	Distance *float64 `json:"distance,omitempty"` // set when the face matched a label
	Score    float64  `json:"score"`
}

// Engine detects and describes faces.
type Engine interface {
	// Detect returns the faces found in frame in detector order.
	Detect(ctx context.Context, frame Frame, profile Profile) ([]Detection, error)
}

// VideoSource provides frames from a camera or a recording.
type VideoSource interface {
	// Active reports whether the source has been opened and not closed
	Active() bool
	// Ready reports whether the source currently has a decodable frame
	Ready() bool
	// Frame returns the current frame
	Frame(ctx context.Context) (Frame, error)
	Open(ctx context.Context) error
	Close() error
}

// Gallery is the part of the face gallery recognition needs.
type Gallery interface {
	Matcher() *gallery.Matcher
	AddOrUpdate(ctx context.Context, label string, sig gallery.Signature) error
}

// Label resolves every detection against m, preserving detector order.
// A nil matcher labels every face unknown.
func Label(m *gallery.Matcher, detections []Detection) []DetectionResult {
	results := make([]DetectionResult, len(detections))
	for i, d := range detections {
		match := m.FindBestMatch(d.Signature)
		results[i] = DetectionResult{
			Box:   d.Box,
			Label: match.Label,
			Known: match.Known,
			Score: d.Score,
		}
		if match.Known {
			dist := match.Distance
			results[i].Distance = &dist
		}
	}
	return results
}

// filterConfidence drops detections scoring below floor, keeping order.
func filterConfidence(detections []Detection, floor float64) []Detection {
	kept := detections[:0:0]
	for _, d := range detections {
		if d.Score >= floor {
			kept = append(kept, d)
		}
	}
	return kept
}
