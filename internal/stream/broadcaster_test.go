package stream

import (
	"context"
	"testing"
	"time"

	"wavedeck/internal/playback"
)

// previewFrame builds a full engine-sized frame filled with v, so the
// tests move the same payload the playback engine emits.
func previewFrame(v int16) []int16 {
	f := make([]int16, playback.FrameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestListenerBufferMatchesFrameCadence(t *testing.T) {
	// Three seconds of 20ms frames.
	if want := int(3 * time.Second / playback.FrameDuration); listenerBuffer != want {
		t.Errorf("listenerBuffer = %d, want %d", listenerBuffer, want)
	}
	b := NewBroadcaster()
	l := b.Subscribe()
	defer b.Unsubscribe(l)
	if cap(l.C) != listenerBuffer {
		t.Errorf("cap(l.C) = %d, want %d", cap(l.C), listenerBuffer)
	}
}

func TestSubscribeUnsubscribeCounts(t *testing.T) {
	b := NewBroadcaster()
	if b.ListenerCount() != 0 {
		t.Fatalf("fresh broadcaster ListenerCount = %d, want 0", b.ListenerCount())
	}

	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount after unsubscribe = %d, want 1", b.ListenerCount())
	}
	b.Unsubscribe(l2)
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount after all gone = %d, want 0", b.ListenerCount())
	}
}

func TestFanOutReachesEveryListener(t *testing.T) {
	b := NewBroadcaster()
	listeners := []*Listener{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	b.fanOut(previewFrame(7))

	for i, l := range listeners {
		select {
		case frame := <-l.C:
			if len(frame) != playback.FrameSamples {
				t.Errorf("listener %d frame length = %d, want %d", i, len(frame), playback.FrameSamples)
			}
			if frame[0] != 7 {
				t.Errorf("listener %d frame[0] = %d, want 7", i, frame[0])
			}
		default:
			t.Errorf("listener %d received nothing", i)
		}
	}
}

func TestSlowListenerDropsFramesFastOneKeepsUp(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe()
	fast := b.Subscribe()

	// Push well past the slow listener's buffer while draining the
	// fast one every frame.
	sent := listenerBuffer + 50
	fastGot := 0
	for i := 0; i < sent; i++ {
		b.fanOut(previewFrame(int16(i)))
		select {
		case <-fast.C:
			fastGot++
		default:
		}
	}

	if fastGot != sent {
		t.Errorf("fast listener got %d frames, want %d", fastGot, sent)
	}
	if n := len(slow.C); n != listenerBuffer {
		t.Errorf("slow listener queued %d frames, want the buffer cap %d", n, listenerBuffer)
	}

	// The queued frames are the oldest ones; everything newer was
	// dropped rather than stalling the preview.
	if first := <-slow.C; first[0] != 0 {
		t.Errorf("slow listener's first frame = %d, want 0", first[0])
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan []int16)

	stopped := make(chan struct{})
	go func() {
		b.Run(ctx, frames)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestRunStopsWhenEngineStops(t *testing.T) {
	b := NewBroadcaster()
	frames := make(chan []int16, 1)

	stopped := make(chan struct{})
	go func() {
		b.Run(context.Background(), frames)
		close(stopped)
	}()

	frames <- previewFrame(1)
	close(frames)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the frame channel closed")
	}
}

func TestUnsubscribeSignalsDoneOnce(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	b.Unsubscribe(l)
	select {
	case <-l.done:
	default:
		t.Error("done not closed after unsubscribe")
	}

	// A second unsubscribe of the same listener is a no-op, not a
	// double close.
	b.Unsubscribe(l)
}
