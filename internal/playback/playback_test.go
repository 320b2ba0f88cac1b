package playback

import (
	"testing"
	"time"

	"wavedeck/internal/track"
)

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		if got := Smoothstep(tt.input); got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic at %v: %v < %v", x, val, prev)
		}
		prev = val
	}
}

// constFrames returns n frames of interleaved stereo at a constant level.
func constFrames(n int, level int16) []int16 {
	s := make([]int16, n*FrameSamples)
	for i := range s {
		s[i] = level
	}
	return s
}

func newEngine(t *testing.T) (*Engine, *track.Store) {
	t.Helper()
	s := track.NewStore()
	s.Reset(track.Track{ID: track.OriginalID, Name: "a", Volume: 1})
	return NewEngine(s), s
}

func TestEmptyEngineStaysStopped(t *testing.T) {
	e, _ := newEngine(t)

	e.Play()
	if e.Playing() {
		t.Error("Play with no audio started the clock")
	}
	pos, dur := e.Position()
	if pos != 0 || dur != 0 {
		t.Errorf("position/duration = %v/%v", pos, dur)
	}
}

func TestDurationIsLongestTrack(t *testing.T) {
	e, s := newEngine(t)
	s.Add(track.Track{ID: "vocal-1", Volume: 1})

	e.SetTrackAudio(track.OriginalID, constFrames(100, 0)) // 2s
	e.SetTrackAudio("vocal-1", constFrames(250, 0))        // 5s

	if _, dur := e.Position(); dur != 5 {
		t.Errorf("duration = %v, want 5", dur)
	}
}

func TestSeekClamps(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 0)) // 2s

	e.Seek(-3)
	if pos, _ := e.Position(); pos != 0 {
		t.Errorf("seek below zero: pos = %v", pos)
	}
	e.Seek(99)
	if pos, _ := e.Position(); pos != 2 {
		t.Errorf("seek past end: pos = %v, want 2", pos)
	}
	e.Seek(1)
	if pos, _ := e.Position(); pos != 1 {
		t.Errorf("seek to 1s: pos = %v", pos)
	}
}

func TestSeekKeepsPlayState(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 0))

	e.Seek(1)
	if e.Playing() {
		t.Error("seek while paused started playback")
	}
	e.Play()
	e.Seek(0.5)
	if !e.Playing() {
		t.Error("seek while playing paused it")
	}
}

func TestStepAdvancesOnlyWhilePlaying(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))

	e.step()
	if pos, _ := e.Position(); pos != 0 {
		t.Errorf("paused step advanced clock to %v", pos)
	}

	e.Play()
	for i := 0; i < 10; i++ {
		e.step()
	}
	if pos, _ := e.Position(); pos != 0.2 {
		t.Errorf("after 10 playing frames pos = %v, want 0.2", pos)
	}
}

func TestNaturalEndParksPaused(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(3, 1000))

	e.Play()
	for i := 0; i < 10; i++ {
		e.step()
	}

	if e.Playing() {
		t.Error("still playing past the end")
	}
	pos, dur := e.Position()
	if pos != dur {
		t.Errorf("pos = %v, want parked at duration %v", pos, dur)
	}

	// Play after a natural end restarts from zero.
	e.Play()
	if pos, _ := e.Position(); pos != 0 {
		t.Errorf("replay pos = %v, want 0", pos)
	}
	if !e.Playing() {
		t.Error("replay did not start")
	}
}

func TestPausedStepEmitsSilence(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(10, 5000))

	frame := e.step()
	if len(frame) != FrameSamples {
		t.Fatalf("frame length = %d", len(frame))
	}
	for _, s := range frame {
		if s != 0 {
			t.Fatal("paused frame carries audio")
		}
	}
}

// stepPastRamp advances beyond the declick ramp so gain is unity.
func stepPastRamp(e *Engine) []int16 {
	var f []int16
	for i := 0; i <= rampFrames; i++ {
		f = e.step()
	}
	return f
}

func TestMixSumsAtEffectiveGains(t *testing.T) {
	e, s := newEngine(t)
	s.Add(track.Track{ID: "vocal-1", Volume: 0.5})
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))
	e.SetTrackAudio("vocal-1", constFrames(100, 1000))

	e.Play()
	frame := stepPastRamp(e)
	// 1000*1.0 + 1000*0.5
	if frame[0] != 1500 {
		t.Errorf("mixed sample = %d, want 1500", frame[0])
	}
}

func TestMixUsesSnapshotVolume(t *testing.T) {
	e, s := newEngine(t)
	s.Add(track.Track{ID: "vocal-1", Volume: 0})
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))
	e.SetTrackAudio("vocal-1", constFrames(100, 500))

	// A track faded all the way down is still audible but contributes
	// nothing; the gain comes from the same snapshot as the track list.
	e.Play()
	frame := stepPastRamp(e)
	if frame[0] != 1000 {
		t.Errorf("mixed sample = %d, want 1000", frame[0])
	}
}

func TestMixMuteAndSolo(t *testing.T) {
	e, s := newEngine(t)
	s.Add(
		track.Track{ID: "vocal-1", Volume: 1, Solo: true},
		track.Track{ID: "music-1", Volume: 1},
	)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))
	e.SetTrackAudio("vocal-1", constFrames(100, 300))
	e.SetTrackAudio("music-1", constFrames(100, 700))

	e.Play()
	frame := stepPastRamp(e)
	// solo narrows the mix to the soloed track only
	if frame[0] != 300 {
		t.Errorf("soloed mix sample = %d, want 300", frame[0])
	}

	muted := true
	s.Update("vocal-1", track.Patch{Muted: &muted})
	if frame := e.step(); frame[0] != 0 {
		t.Errorf("muted solo still audible: %d", frame[0])
	}
}

func TestMixClips(t *testing.T) {
	e, s := newEngine(t)
	s.Add(track.Track{ID: "b", Volume: 1})
	e.SetTrackAudio(track.OriginalID, constFrames(100, 30000))
	e.SetTrackAudio("b", constFrames(100, 30000))

	e.Play()
	frame := stepPastRamp(e)
	if frame[0] != 32767 {
		t.Errorf("sample = %d, want clipped to 32767", frame[0])
	}
}

func TestShortTrackDropsOut(t *testing.T) {
	e, s := newEngine(t)
	s.Add(track.Track{ID: "b", Volume: 1})
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))
	e.SetTrackAudio("b", constFrames(2, 1000)) // ends after 2 frames

	e.Seek(1) // well past the short track
	e.Play()
	frame := stepPastRamp(e)
	if frame[0] != 1000 {
		t.Errorf("sample = %d, want 1000 from the long track only", frame[0])
	}
}

func TestReplaceAudioClampsClock(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000)) // 2s
	e.Seek(2)

	// A cut shrinks the original.
	e.SetTrackAudio(track.OriginalID, constFrames(25, 1000)) // 0.5s
	pos, dur := e.Position()
	if dur != 0.5 {
		t.Errorf("duration = %v, want 0.5", dur)
	}
	if pos > dur {
		t.Errorf("pos = %v past new duration %v", pos, dur)
	}
}

func TestClearResets(t *testing.T) {
	e, _ := newEngine(t)
	e.SetTrackAudio(track.OriginalID, constFrames(100, 1000))
	e.Play()
	e.Clear()

	if e.Playing() {
		t.Error("still playing after clear")
	}
	pos, dur := e.Position()
	if pos != 0 || dur != 0 {
		t.Errorf("position/duration = %v/%v after clear", pos, dur)
	}
}
