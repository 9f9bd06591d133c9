package recognition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/metrics"
)

// State is the session state.
type State string

// Session states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	TickPeriod time.Duration
	Profile    Profile
	Logger     zerolog.Logger
}

// Session is the recognition polling loop. While running it ticks every
// TickPeriod; a tick pulls the current frame, detects faces with the fast
// profile, labels them against the gallery and publishes the results.
//
// At most one detection is in flight: a tick that finds the previous detection
// unresolved is skipped, not queued. Every start begins a new generation; a
// detection that resolves after its generation ended (stop or pause) is
// discarded.
type Session struct {
	source  VideoSource
	engine  Engine
	gallery Gallery
	events  *Broadcaster
	period  time.Duration
	profile Profile
	log     zerolog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{} // closed when the scheduler of the current generation exits
	held       bool          // paused by a capture
	resume     bool          // run again when the hold is released

	inFlight atomic.Bool
	pending  chan struct{} // closed when the latest tick finishes; guarded by mu
}

// NewSession creates an idle session.
func NewSession(source VideoSource, engine Engine, g Gallery, events *Broadcaster, opts SessionOptions) *Session {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = constants.DefaultTickPeriod
	}
	if opts.Profile.Name == "" {
		opts.Profile = FastProfile()
	}
	if events == nil {
		events = NewBroadcaster()
	}
	return &Session{
		source:  source,
		engine:  engine,
		gallery: g,
		events:  events,
		period:  opts.TickPeriod,
		profile: opts.Profile,
		log:     opts.Logger,
		state:   StateIdle,
	}
}

// Events returns the broadcaster the session publishes to.
func (s *Session) Events() *Broadcaster {
	return s.events
}

// State returns the current state. While paused by a capture it reports the
// state the session will return to.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		if s.resume {
			return StateRunning
		}
		return StateIdle
	}
	return s.state
}

// Start begins polling. It fails with ErrInvalidInput when the video source is
// not active and is a no-op when already running. The session outlives ctx;
// call Stop to end it.
func (s *Session) Start(ctx context.Context) error {
	if !s.source.Active() {
		return fmt.Errorf("video source is not active: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		s.resume = true
		return nil
	}
	if s.state == StateRunning {
		return nil
	}
	s.startLocked(ctx)
	return nil
}

// Stop ends polling and returns once the tick scheduler has exited, so no
// tick fires after Stop returns. A detection still in flight is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.held {
		s.resume = false
		s.mu.Unlock()
		return
	}
	done := s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Pause stops polling for a capture and waits until an in-flight detection, if
// any, has resolved and been discarded. It reports whether the session was
// running. The session stays held until Resume, even when Pause fails.
func (s *Session) Pause(ctx context.Context) (bool, error) {
	s.mu.Lock()
	wasRunning := s.state == StateRunning
	s.held = true
	s.resume = wasRunning
	done := s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return wasRunning, nil
	}

	select {
	case <-pending:
		return wasRunning, nil
	case <-ctx.Done():
		return wasRunning, fmt.Errorf("waiting for in-flight detection: %w", ctx.Err())
	}
}

// Resume releases a Pause, restarting the session if it was running before the
// pause or was started during it.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held {
		return
	}
	s.held = false
	if s.resume && s.state == StateIdle && s.source.Active() {
		s.startLocked(context.Background())
	}
	s.resume = false
}

func (s *Session) startLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.generation++
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(loopCtx, s.generation, s.done)

	metrics.SessionRunning.Set(1)
	s.log.Info().Uint64("generation", s.generation).Dur("tick_period", s.period).Msg("recognition session started")
	s.events.Publish(Event{Type: EventState, Data: StateChange{State: StateRunning}})
}

// stopLocked ends the current generation and returns the channel to wait on,
// or nil when the session was not running.
func (s *Session) stopLocked() chan struct{} {
	if s.state != StateRunning {
		return nil
	}
	s.generation++
	s.state = StateIdle
	s.cancel()
	done := s.done
	s.cancel, s.done = nil, nil

	metrics.SessionRunning.Set(0)
	s.log.Info().Bool("held", s.held).Msg("recognition session stopped")
	s.events.Publish(Event{Type: EventState, Data: StateChange{State: StateIdle}})
	return done
}

// run schedules ticks until ctx is canceled.
func (s *Session) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !s.inFlight.CompareAndSwap(false, true) {
				metrics.RecordTick(metrics.OutcomeBusy)
				continue
			}
			finished := make(chan struct{})
			s.mu.Lock()
			s.pending = finished
			s.mu.Unlock()
			go func() {
				defer close(finished)
				defer s.inFlight.Store(false)
				s.tick(ctx, gen)
			}()
		}
	}
}

// tick runs one recognition pass for generation gen.
func (s *Session) tick(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		metrics.RecordTick(metrics.OutcomeDiscarded)
		return
	}
	if !s.source.Ready() {
		metrics.RecordTick(metrics.OutcomeNotReady)
		return
	}
	frame, err := s.source.Frame(ctx)
	if err != nil {
		metrics.RecordTick(metrics.OutcomeNotReady)
		s.log.Debug().Err(err).Msg("frame not available, skipping tick")
		return
	}

	results, err := s.Recognize(ctx, frame)
	if err != nil {
		results = []DetectionResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		metrics.RecordTick(metrics.OutcomeDiscarded)
		return
	}

	if err != nil {
		metrics.RecordTick(metrics.OutcomeEngineError)
		s.log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("detection failed, emitting empty results")
		s.events.Publish(Event{Type: EventError, Message: err.Error()})
	} else {
		metrics.RecordTick(metrics.OutcomeEmitted)
	}
	s.events.Publish(Event{
		Type: EventFrame,
		Data: FrameResults{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Results: results},
	})
}

// Recognize detects faces in frame with the session profile and labels them
// against the current gallery matcher. Engine failures wrap ErrInference.
func (s *Session) Recognize(ctx context.Context, frame Frame) ([]DetectionResult, error) {
	start := time.Now()
	detections, err := s.engine.Detect(ctx, frame, s.profile)
	metrics.RecordDetection(s.profile.Name, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	detections = filterConfidence(detections, s.profile.MinConfidence)

	results := Label(s.gallery.Matcher(), detections)

	known := 0
	for _, r := range results {
		if r.Known {
			known++
		}
	}
	metrics.RecordFaces(known, len(results)-known)
	return results, nil
}
