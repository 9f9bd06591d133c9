package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// fakeGallery is an in-memory Gallery.
type fakeGallery struct {
	mu      sync.Mutex
	labels  []string
	removed []string
}

func (g *fakeGallery) Search(query string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := []string{}
	for _, l := range g.labels {
		if strings.Contains(strings.ToLower(l), strings.ToLower(query)) {
			out = append(out, l)
		}
	}
	return out
}

func (g *fakeGallery) Remove(ctx context.Context, label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, label)
	i := slices.Index(g.labels, label)
	if i < 0 {
		return false
	}
	g.labels = slices.Delete(g.labels, i, i+1)
	return true
}

func (g *fakeGallery) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.labels)
}

// fakeCapturer returns a canned result or error.
type fakeCapturer struct {
	result *recognition.CaptureResult
	err    error
	labels []string
}

func (c *fakeCapturer) Capture(ctx context.Context, label string) (*recognition.CaptureResult, error) {
	c.labels = append(c.labels, label)
	return c.result, c.err
}

// fakeSession is a Session with a settable start error.
type fakeSession struct {
	mu       sync.Mutex
	state    recognition.State
	startErr error
	events   *recognition.Broadcaster
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: recognition.StateIdle, events: recognition.NewBroadcaster()}
}

func (s *fakeSession) State() recognition.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.state = recognition.StateRunning
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = recognition.StateIdle
}

func (s *fakeSession) Events() *recognition.Broadcaster { return s.events }

type fakeEngineStatus string

func (e fakeEngineStatus) BreakerState() string { return string(e) }

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
