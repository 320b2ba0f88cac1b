// Package playback mixes the session's audible tracks into a real-time
// PCM frame stream and keeps the transport clock. The engine holds
// decoded track audio in memory; the stream layer fans its frames out
// to listeners.
package playback

import (
	"context"
	"sync"
	"time"

	"wavedeck/internal/track"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// rampFrames is the declick ramp length after play or seek (100ms).
const rampFrames = 5

// Engine mixes decoded track audio at the track store's effective
// gains and emits 20ms interleaved stereo frames at real-time rate.
// While paused it emits silence so stream listeners stay connected.
type Engine struct {
	store   *track.Store
	frameCh chan []int16

	mu      sync.RWMutex
	playing bool
	frame   int // current frame index
	total   int // longest decoded track, in frames
	ramp    int // frames left in the post-play declick ramp
	decoded map[string][]int16
}

// NewEngine creates an engine mixing over the given track store.
func NewEngine(store *track.Store) *Engine {
	return &Engine{
		store:   store,
		frameCh: make(chan []int16, 100),
		decoded: make(map[string][]int16),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (e *Engine) Frames() <-chan []int16 {
	return e.frameCh
}

// SetTrackAudio installs decoded samples for a track. Replacing a
// track's audio (after a cut or fade) keeps the clock where it is,
// clamped to the new duration.
func (e *Engine) SetTrackAudio(id string, samples []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decoded[id] = samples
	e.recalcTotal()
	if e.frame > e.total {
		e.frame = e.total
	}
}

// RemoveTrack drops a track's decoded audio.
func (e *Engine) RemoveTrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.decoded, id)
	e.recalcTotal()
	if e.frame > e.total {
		e.frame = e.total
	}
}

// Clear drops all decoded audio and resets the clock.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decoded = make(map[string][]int16)
	e.playing = false
	e.frame = 0
	e.total = 0
}

// recalcTotal must be called with mu held.
func (e *Engine) recalcTotal() {
	total := 0
	for _, s := range e.decoded {
		if f := len(s) / FrameSamples; f > total {
			total = f
		}
	}
	e.total = total
}

// Play starts the clock. At the end of the audio it rewinds first, so
// play after a natural end restarts from zero.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total == 0 {
		return
	}
	if e.frame >= e.total {
		e.frame = 0
	}
	e.playing = true
	e.ramp = rampFrames
}

// Pause stops the clock, keeping the position.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Toggle flips between playing and paused.
func (e *Engine) Toggle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.playing = false
		return
	}
	if e.total == 0 {
		return
	}
	if e.frame >= e.total {
		e.frame = 0
	}
	e.playing = true
	e.ramp = rampFrames
}

// Seek moves the clock to the given time, clamped to [0, duration].
// Play state is unchanged.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	frame := int(seconds * float64(SampleRate) / FrameSize)
	if frame < 0 {
		frame = 0
	}
	if frame > e.total {
		frame = e.total
	}
	e.frame = frame
	e.ramp = rampFrames
}

// Position returns the clock position and total duration in seconds.
func (e *Engine) Position() (position, duration float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return frameSeconds(e.frame), frameSeconds(e.total)
}

// Playing reports whether the clock is advancing.
func (e *Engine) Playing() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.playing
}

func frameSeconds(frames int) float64 {
	return float64(frames) * FrameDuration.Seconds()
}

// Run emits one frame per tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		select {
		case e.frameCh <- e.step():
		case <-ctx.Done():
			return
		}
	}
}

// step produces the next output frame and advances the clock. Paused
// or drained, it produces silence.
func (e *Engine) step() []int16 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing || e.frame >= e.total {
		if e.playing {
			// natural end: park the clock at the end, paused
			e.playing = false
			e.frame = e.total
		}
		return make([]int16, FrameSamples)
	}

	frame := e.mixFrame(e.frame)
	if e.ramp > 0 {
		gain := Smoothstep(float64(rampFrames-e.ramp) / rampFrames)
		applyGain(frame, gain)
		e.ramp--
	}

	e.frame++
	if e.frame >= e.total {
		e.playing = false
		e.frame = e.total
	}
	return frame
}

// mixFrame sums all audible tracks at their effective gains, with
// clipping. Tracks shorter than the clock contribute nothing. Must be
// called with mu held.
func (e *Engine) mixFrame(frameIdx int) []int16 {
	acc := make([]float64, FrameSamples)
	offset := frameIdx * FrameSamples

	for _, t := range e.store.Audible() {
		samples, ok := e.decoded[t.ID]
		if !ok || offset >= len(samples) {
			continue
		}
		// The audible snapshot already resolved mute and solo, so the
		// track's volume is its effective gain.
		gain := t.Volume
		if gain == 0 {
			continue
		}
		end := offset + FrameSamples
		if end > len(samples) {
			end = len(samples)
		}
		for i, s := range samples[offset:end] {
			acc[i] += float64(s) * gain
		}
	}

	out := make([]int16, FrameSamples)
	for i, v := range acc {
		out[i] = clip(v)
	}
	return out
}

func applyGain(frame []int16, gain float64) {
	for i, s := range frame {
		frame[i] = clip(float64(s) * gain)
	}
}

func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
