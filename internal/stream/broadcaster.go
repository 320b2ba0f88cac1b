// Package stream fans the playback engine's mix-preview frames out to
// listeners over chunked MP3 HTTP and WebRTC/Opus.
package stream

import (
	"context"
	"sync"
	"time"

	"wavedeck/internal/playback"
)

// listenerBuffer is how far a listener may fall behind before frames
// are dropped: three seconds of preview at the engine's frame cadence.
const listenerBuffer = int(3 * time.Second / playback.FrameDuration)

// Listener is one subscriber's queue of 20ms preview frames.
type Listener struct {
	C    chan []int16
	done chan struct{}
}

// Broadcaster relays mix-preview frames from the playback engine to
// every attached listener. Playback never waits for a slow consumer.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe attaches a listener to the preview feed.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe detaches a listener and signals it to stop. Safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, attached := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if attached {
		close(l.done)
	}
}

// ListenerCount reports how many listeners are attached.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run relays frames until ctx is cancelled or the engine's frame
// channel closes.
func (b *Broadcaster) Run(ctx context.Context, frames <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			b.fanOut(frame)
		}
	}
}

// fanOut hands one frame to every listener, skipping any whose queue
// is full.
func (b *Broadcaster) fanOut(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
		}
	}
}
