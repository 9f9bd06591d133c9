package recognition

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-recognizer/internal/constants"
)

// Event types.
const (
	EventFrame   = "frame"
	EventWarning = "warning"
	EventError   = "error"
	EventState   = "state"
)

// Event is published to session subscribers.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FrameResults is the data of a frame event.
type FrameResults struct {
	Seq        uint64            `json:"seq"`
	CapturedAt time.Time         `json:"captured_at"`
	Results    []DetectionResult `json:"results"`
}

// StateChange is the data of a state event.
type StateChange struct {
	State State `json:"state"`
}

// Broadcaster fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]chan Event
}

// NewBroadcaster creates a broadcaster without subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[string]chan Event)}
}

// Subscribe registers a listener and returns its ID and event channel.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners[id] = ch
	return id, ch
}

// Unsubscribe removes the listener and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.listeners[id]; ok {
		delete(b.listeners, id)
		close(ch)
	}
}

// Publish sends an event to all listeners.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
