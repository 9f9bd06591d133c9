package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/gallery"
)

const waitTimeout = 2 * time.Second

// fakeSource is a controllable VideoSource.
type fakeSource struct {
	active   atomic.Bool
	ready    atomic.Bool
	seq      atomic.Uint64
	frameErr error
}

func newFakeSource() *fakeSource {
	s := &fakeSource{}
	s.active.Store(true)
	s.ready.Store(true)
	return s
}

func (s *fakeSource) Active() bool { return s.active.Load() }
func (s *fakeSource) Ready() bool  { return s.ready.Load() }

func (s *fakeSource) Frame(ctx context.Context) (Frame, error) {
	if s.frameErr != nil {
		return Frame{}, s.frameErr
	}
	return Frame{Seq: s.seq.Add(1), Data: []byte{0xff, 0xd8}, Width: 640, Height: 480, CapturedAt: time.Now()}, nil
}

func (s *fakeSource) Open(ctx context.Context) error { s.active.Store(true); return nil }
func (s *fakeSource) Close() error                   { s.active.Store(false); return nil }

type detectFunc func(ctx context.Context, frame Frame, profile Profile) ([]Detection, error)

// fakeEngine records calls per profile and delegates to detect.
type fakeEngine struct {
	mu     sync.Mutex
	detect detectFunc
	calls  map[string]int
}

func newFakeEngine(fn detectFunc) *fakeEngine {
	return &fakeEngine{detect: fn, calls: make(map[string]int)}
}

func returning(detections ...Detection) *fakeEngine {
	return newFakeEngine(func(context.Context, Frame, Profile) ([]Detection, error) {
		return detections, nil
	})
}

func failing(err error) *fakeEngine {
	return newFakeEngine(func(context.Context, Frame, Profile) ([]Detection, error) {
		return nil, err
	})
}

func (e *fakeEngine) Detect(ctx context.Context, frame Frame, profile Profile) ([]Detection, error) {
	e.mu.Lock()
	e.calls[profile.Name]++
	fn := e.detect
	e.mu.Unlock()
	return fn(ctx, frame, profile)
}

func (e *fakeEngine) Calls(profile string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[profile]
}

// blockingEngine resolves every detection only once release is closed,
// regardless of cancellation, like a slow inference that cannot be aborted.
type blockingEngine struct {
	*fakeEngine
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingEngine(detections ...Detection) *blockingEngine {
	b := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	b.fakeEngine = newFakeEngine(func(context.Context, Frame, Profile) ([]Detection, error) {
		b.once.Do(func() { close(b.started) })
		<-b.release
		return detections, nil
	})
	return b
}

var errEngineDown = errors.New("engine unavailable")

func face(score float64, signature ...float32) Detection {
	return Detection{
		Box:       Box{X: 10, Y: 20, Width: 100, Height: 120},
		Score:     score,
		Signature: gallery.Signature(signature),
	}
}

func newGallery(t *testing.T, entries ...gallery.LabeledFace) *gallery.Gallery {
	t.Helper()
	g := gallery.New(nil, gallery.Options{Threshold: 0.6, Logger: zerolog.Nop()})
	if err := g.Hydrate(entries); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	return g
}

func newTestSession(source VideoSource, engine Engine, g Gallery) *Session {
	return NewSession(source, engine, g, nil, SessionOptions{
		TickPeriod: 2 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})
}

// waitEvent returns the next event of the given type.
func waitEvent(t *testing.T, ch <-chan Event, eventType string) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %q", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", eventType)
		}
	}
}

// drain returns every event currently buffered in ch.
func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
