package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/metrics"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

const dirSourceName = "dir"

var frameExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tif", ".tiff"}

// DirSource replays the images of a directory in file name order, one per
// Frame call.
type DirSource struct {
	dir string

	mu     sync.Mutex
	files  []string
	pos    int
	active bool
}

// NewDirSource creates a closed source over dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Open lists the image files of the directory.
func (s *DirSource) Open(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	slices.Sort(files)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = files
	s.pos = 0
	s.active = true
	return nil
}

// Close ends the replay.
func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

// Active reports whether the source is open.
func (s *DirSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Ready reports whether frames remain.
func (s *DirSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.pos < len(s.files)
}

// Len returns the number of frames found by Open.
func (s *DirSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Frame returns the next frame. A file that cannot be decoded is skipped and
// reported; the following call moves on to the next file.
func (s *DirSource) Frame(ctx context.Context) (recognition.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return recognition.Frame{}, ErrNotOpen
	}
	if s.pos >= len(s.files) {
		return recognition.Frame{}, ErrExhausted
	}
	path := s.files[s.pos]
	s.pos++

	data, err := os.ReadFile(path)
	if err != nil {
		metrics.FrameErrors.WithLabelValues(dirSourceName).Inc()
		return recognition.Frame{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	capturedAt := time.Now()
	if info, err := os.Stat(path); err == nil {
		capturedAt = info.ModTime()
	}

	frame, err := decodeFrame(data, uint64(s.pos), capturedAt)
	if err != nil {
		metrics.FrameErrors.WithLabelValues(dirSourceName).Inc()
		return recognition.Frame{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	metrics.FramesCaptured.WithLabelValues(dirSourceName).Inc()
	return frame, nil
}
