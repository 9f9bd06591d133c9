// Package engine is the HTTP client of the face embedding server: it detects
// faces in a frame and returns their bounding boxes and signatures.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kozaktomas/face-recognizer/internal/gallery"
	"github.com/kozaktomas/face-recognizer/internal/metrics"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

const (
	defaultURL             = "http://localhost:8000"
	defaultTimeout         = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 5 * time.Second
)

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("face engine unavailable")

// Options configures a Client.
type Options struct {
	URL             string
	Timeout         time.Duration
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerCooldown time.Duration // time the breaker stays open
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// Client calls the face endpoint of the embedding server.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*FaceResponse]
	log     zerolog.Logger
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// NewClient creates a new face engine client
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = defaultBreakerCooldown
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(opts.URL, "/"),
		client:  httpClient,
		log:     opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*FaceResponse](gobreaker.Settings{
		Name:        "face-engine",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.EngineBreakerState.Set(float64(to))
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("face engine circuit breaker changed state")
		},
	})
	return c
}

// BreakerState returns the circuit breaker state ("closed", "half-open" or "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Detect implements recognition.Engine. The frame is scaled down to the
// profile input size before upload and the returned boxes are mapped back to
// source-frame pixels.
func (c *Client) Detect(ctx context.Context, frame recognition.Frame, profile recognition.Profile) ([]recognition.Detection, error) {
	data, scale, err := fitImage(frame.Data, profile.InputSize)
	if err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*FaceResponse, error) {
		return c.ComputeFaceEmbeddings(ctx, data, profile.MinConfidence)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	detections := make([]recognition.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		box, ok := cornerBox(f.BBox, scale, frame.Width, frame.Height)
		if !ok || len(f.Embedding) == 0 {
			c.log.Warn().Int("face_index", f.FaceIndex).Msg("skipping malformed face from engine")
			continue
		}
		detections = append(detections, recognition.Detection{
			Box:       box,
			Score:     f.DetScore,
			Signature: gallery.Signature(f.Embedding),
		})
	}

	c.log.Debug().
		Uint64("seq", frame.Seq).
		Str("profile", profile.Name).
		Str("model", resp.Model).
		Int("faces", len(detections)).
		Msg("faces detected")
	return detections, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte, minScore float64) (*FaceResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("min_score", strconv.FormatFloat(minScore, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("failed to write min_score: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}
