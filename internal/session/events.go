package session

import "sync"

// EventKind classifies session notifications.
type EventKind string

const (
	// EventProcessing fires when an operation starts.
	EventProcessing EventKind = "processing"
	// EventCompleted fires when an operation settles successfully.
	EventCompleted EventKind = "completed"
	// EventFailed fires when an operation settles with an error.
	EventFailed EventKind = "failed"
	// EventTracks fires when track membership or a track URL changes.
	EventTracks EventKind = "tracks"
	// EventLoaded fires when a source file becomes the session's subject.
	EventLoaded EventKind = "loaded"
	// EventUnloaded fires when the session is reset.
	EventUnloaded EventKind = "unloaded"
)

// Event is one notification from the session. Presentation layers
// (toasts, TUI status line, WebSocket feed) subscribe to these instead
// of being called directly.
type Event struct {
	Kind    EventKind `json:"kind"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message,omitempty"`
	URL     string    `json:"url,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// Subscriber receives session events.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Done is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// bus fans out events to all subscribers. Slow subscribers get events
// dropped rather than blocking the session.
type bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func newBus() *bus {
	return &bus{subs: make(map[*Subscriber]struct{})}
}

func (b *bus) subscribe() *Subscriber {
	s := &Subscriber{
		C:    make(chan Event, 32),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *bus) unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[s]
	delete(b.subs, s)
	b.mu.Unlock()
	if ok {
		close(s.done)
	}
}

func (b *bus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.C <- e:
		default:
			// subscriber too slow, drop rather than stall an operation
		}
	}
}
