package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/metrics"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

const (
	snapshotSourceName = "snapshot"
	maxSnapshotBytes   = 20 << 20
)

// SnapshotOptions configures a SnapshotSource.
type SnapshotOptions struct {
	URL          string
	PollInterval time.Duration
	// StaleAfter is how old the latest frame may get before the source stops
	// being ready; 0 never expires frames.
	StaleAfter time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// SnapshotSource polls a camera's still-image endpoint and keeps the latest
// decodable frame.
type SnapshotSource struct {
	url        string
	interval   time.Duration
	staleAfter time.Duration
	client     *http.Client
	log        zerolog.Logger
	maxBytes   int64
	decode     func(data []byte, seq uint64, capturedAt time.Time) (recognition.Frame, error)

	mu     sync.RWMutex
	active bool
	latest recognition.Frame
	have   bool
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotSource creates a closed snapshot source.
func NewSnapshotSource(opts SnapshotOptions) *SnapshotSource {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &SnapshotSource{
		url:        opts.URL,
		interval:   opts.PollInterval,
		staleAfter: opts.StaleAfter,
		client:     client,
		log:        opts.Logger,
		maxBytes:   maxSnapshotBytes,
		decode:     decodeFrame,
	}
}

// Open starts polling. Opening an open source is a no-op.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("snapshot URL is not configured: %w", recognition.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.active = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.poll(pollCtx, s.done)

	s.log.Info().Str("url", s.url).Dur("interval", s.interval).Msg("camera opened")
	return nil
}

// Close stops polling and forgets the latest frame.
func (s *SnapshotSource) Close() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.have = false
	s.latest = recognition.Frame{}
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info().Msg("camera closed")
	return nil
}

// Active reports whether the source is open.
func (s *SnapshotSource) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Ready reports whether a fresh frame is available.
func (s *SnapshotSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyLocked()
}

func (s *SnapshotSource) readyLocked() bool {
	if !s.active || !s.have {
		return false
	}
	return s.staleAfter <= 0 || time.Since(s.latest.CapturedAt) <= s.staleAfter
}

// Frame returns the latest frame.
func (s *SnapshotSource) Frame(ctx context.Context) (recognition.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.active {
		return recognition.Frame{}, ErrNotOpen
	}
	if !s.readyLocked() {
		return recognition.Frame{}, ErrNotReady
	}
	return s.latest, nil
}

func (s *SnapshotSource) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.fetch(ctx); err != nil && ctx.Err() == nil {
			metrics.FrameErrors.WithLabelValues(snapshotSourceName).Inc()
			s.log.Debug().Err(err).Msg("failed to fetch snapshot")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SnapshotSource) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("camera returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}

	frame, err := s.decode(data, 0, time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.seq++
	frame.Seq = s.seq
	s.latest = frame
	s.have = true
	metrics.FramesCaptured.WithLabelValues(snapshotSourceName).Inc()
	return nil
}
