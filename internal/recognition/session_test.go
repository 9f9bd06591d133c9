package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/gallery"
)

var sigAlice = gallery.Signature{0.1, 0.2, 0.3, 0.4}

func aliceGallery(t *testing.T) *gallery.Gallery {
	return newGallery(t, gallery.LabeledFace{Label: "alice", Signatures: []gallery.Signature{sigAlice}})
}

func TestSession_StartRequiresActiveSource(t *testing.T) {
	source := newFakeSource()
	source.active.Store(false)
	s := newTestSession(source, returning(), aliceGallery(t))

	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
}

func TestSession_StartStopAreIdempotent(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(), aliceGallery(t))

	s.Stop()
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}

	for range 2 {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if s.State() != StateRunning {
			t.Fatalf("expected running, got %s", s.State())
		}
	}
	for range 2 {
		s.Stop()
		if s.State() != StateIdle {
			t.Fatalf("expected idle, got %s", s.State())
		}
	}
}

func TestSession_EmitsLabeledResults(t *testing.T) {
	engine := returning(
		face(0.9, sigAlice...),
		face(0.8, 5, 5, 5, 5),
	)
	s := newTestSession(newFakeSource(), engine, aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	ev := waitEvent(t, events, EventFrame)
	frame, ok := ev.Data.(FrameResults)
	if !ok {
		t.Fatalf("unexpected frame payload %T", ev.Data)
	}
	if len(frame.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(frame.Results))
	}

	alice, stranger := frame.Results[0], frame.Results[1]
	if alice.Label != "alice" || !alice.Known || alice.Distance == nil || *alice.Distance > 0.6 {
		t.Errorf("unexpected first result %+v", alice)
	}
	if stranger.Label != constants.UnknownLabel || stranger.Known || stranger.Distance != nil {
		t.Errorf("unexpected second result %+v", stranger)
	}
	if engine.Calls(ProfileAccurate) != 0 || engine.Calls(ProfileFast) == 0 {
		t.Error("expected ticks to use the fast profile only")
	}
}

func TestSession_EmptyGalleryLabelsUnknown(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(face(0.9, sigAlice...)), newGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	frame := waitEvent(t, events, EventFrame).Data.(FrameResults)
	if len(frame.Results) != 1 || frame.Results[0].Label != constants.UnknownLabel {
		t.Errorf("expected a single unknown face, got %+v", frame.Results)
	}
}

func TestSession_NoFacesEmitsEmptyResults(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(), aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	frame := waitEvent(t, events, EventFrame).Data.(FrameResults)
	if frame.Results == nil || len(frame.Results) != 0 {
		t.Errorf("expected an empty, non-nil result list, got %#v", frame.Results)
	}
}

func TestSession_DropsLowConfidenceFaces(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(face(0.2, sigAlice...), face(0.7, sigAlice...)), aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	frame := waitEvent(t, events, EventFrame).Data.(FrameResults)
	if len(frame.Results) != 1 || frame.Results[0].Score != 0.7 {
		t.Errorf("expected only the confident face, got %+v", frame.Results)
	}
}

func TestSession_SkipsWhenSourceNotReady(t *testing.T) {
	tests := []struct {
		name   string
		source func() *fakeSource
	}{
		{name: "not ready", source: func() *fakeSource {
			src := newFakeSource()
			src.ready.Store(false)
			return src
		}},
		{name: "undecodable frame", source: func() *fakeSource {
			src := newFakeSource()
			src.frameErr = errors.New("corrupt jpeg")
			return src
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := returning(face(0.9, sigAlice...))
			s := newTestSession(tt.source(), engine, aliceGallery(t))
			id, events := s.Events().Subscribe()
			defer s.Events().Unsubscribe(id)

			if err := s.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			time.Sleep(30 * time.Millisecond)
			s.Stop()

			if engine.Calls(ProfileFast) != 0 {
				t.Errorf("expected no detections, got %d", engine.Calls(ProfileFast))
			}
			for _, ev := range drain(events) {
				if ev.Type == EventFrame || ev.Type == EventError {
					t.Errorf("unexpected %s event", ev.Type)
				}
			}
		})
	}
}

func TestSession_EngineFailureEmitsEmptyResults(t *testing.T) {
	s := newTestSession(newFakeSource(), failing(errEngineDown), aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitEvent(t, events, EventError)
	frame := waitEvent(t, events, EventFrame).Data.(FrameResults)
	if len(frame.Results) != 0 {
		t.Errorf("expected empty results, got %+v", frame.Results)
	}

	// The session keeps going.
	waitEvent(t, events, EventFrame)
	if s.State() != StateRunning {
		t.Errorf("expected running after engine failures, got %s", s.State())
	}
}

func TestSession_SingleDetectionInFlight(t *testing.T) {
	engine := newBlockingEngine(face(0.9, sigAlice...))
	s := newTestSession(newFakeSource(), engine, aliceGallery(t))

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, engine.started, "first detection")

	// Many tick periods pass while the detection is pending.
	time.Sleep(40 * time.Millisecond)
	if calls := engine.Calls(ProfileFast); calls != 1 {
		t.Errorf("expected 1 detection in flight, got %d calls", calls)
	}

	close(engine.release)
	s.Stop()
}

func TestSession_StopDiscardsLateResult(t *testing.T) {
	engine := newBlockingEngine(face(0.9, sigAlice...))
	s := newTestSession(newFakeSource(), engine, aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, engine.started, "detection")

	s.Stop()
	close(engine.release)

	// Pause waits for the late detection to resolve.
	if _, err := s.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Resume()

	for _, ev := range drain(events) {
		if ev.Type == EventFrame {
			t.Errorf("late detection was emitted after stop: %+v", ev.Data)
		}
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
}

func TestSession_NoTickAfterStop(t *testing.T) {
	engine := returning()
	s := newTestSession(newFakeSource(), engine, aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, events, EventFrame)
	s.Stop()

	// Let a tick that fired before Stop finish.
	if _, err := s.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Resume()
	drain(events)
	calls := engine.Calls(ProfileFast)

	time.Sleep(30 * time.Millisecond)
	if got := engine.Calls(ProfileFast); got != calls {
		t.Errorf("detections continued after stop: %d -> %d", calls, got)
	}
	for _, ev := range drain(events) {
		if ev.Type == EventFrame {
			t.Error("frame emitted after stop")
		}
	}
}

func TestSession_PauseResume(t *testing.T) {
	tests := []struct {
		name        string
		running     bool
		duringPause func(s *Session)
		wantState   State
	}{
		{name: "running stays running", running: true, wantState: StateRunning},
		{name: "idle stays idle", running: false, wantState: StateIdle},
		{name: "start during pause", running: false, duringPause: func(s *Session) {
			if err := s.Start(context.Background()); err != nil {
				panic(err)
			}
		}, wantState: StateRunning},
		{name: "stop during pause", running: true, duringPause: func(s *Session) { s.Stop() }, wantState: StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := returning()
			s := newTestSession(newFakeSource(), engine, aliceGallery(t))
			defer s.Stop()
			if tt.running {
				if err := s.Start(context.Background()); err != nil {
					t.Fatal(err)
				}
			}

			wasRunning, err := s.Pause(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if wasRunning != tt.running {
				t.Errorf("Pause() = %v, want %v", wasRunning, tt.running)
			}

			calls := engine.Calls(ProfileFast)
			if tt.duringPause != nil {
				tt.duringPause(s)
			}
			time.Sleep(20 * time.Millisecond)
			if got := engine.Calls(ProfileFast); got != calls {
				t.Errorf("session ticked while paused: %d -> %d", calls, got)
			}

			s.Resume()
			if s.State() != tt.wantState {
				t.Errorf("state after resume = %s, want %s", s.State(), tt.wantState)
			}
		})
	}
}

func TestSession_PauseCanceled(t *testing.T) {
	engine := newBlockingEngine()
	s := newTestSession(newFakeSource(), engine, aliceGallery(t))

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, engine.started, "detection")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	wasRunning, err := s.Pause(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if !wasRunning {
		t.Error("expected the session to have been running")
	}

	close(engine.release)
	s.Resume()
	if s.State() != StateRunning {
		t.Errorf("expected running after resume, got %s", s.State())
	}
	s.Stop()
}

func TestSession_StateEvents(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(), aliceGallery(t))
	id, events := s.Events().Subscribe()
	defer s.Events().Unsubscribe(id)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, events, EventState); ev.Data.(StateChange).State != StateRunning {
		t.Errorf("expected running state event, got %+v", ev.Data)
	}
	s.Stop()
	if ev := waitEvent(t, events, EventState); ev.Data.(StateChange).State != StateIdle {
		t.Errorf("expected idle state event, got %+v", ev.Data)
	}
}

func TestSession_Recognize(t *testing.T) {
	s := newTestSession(newFakeSource(), returning(face(0.95, sigAlice...)), aliceGallery(t))

	results, err := s.Recognize(context.Background(), Frame{Seq: 1})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(results) != 1 || results[0].Label != "alice" {
		t.Errorf("unexpected results %+v", results)
	}

	s = newTestSession(newFakeSource(), failing(errEngineDown), aliceGallery(t))
	if _, err := s.Recognize(context.Background(), Frame{Seq: 1}); !errors.Is(err, ErrInference) || !errors.Is(err, errEngineDown) {
		t.Errorf("expected wrapped inference error, got %v", err)
	}
}
