// Package selection turns pointer gestures over a rendered waveform
// into a selected time region and seek events. It is pure geometry:
// no I/O, no clocks, just the current duration and render width.
package selection

// Region is a contiguous time range in seconds. The zero value is the
// "no selection" sentinel.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Empty reports whether the region is the no-selection sentinel.
func (r Region) Empty() bool { return r.Start == r.End }

// Length returns the region length in seconds.
func (r Region) Length() float64 { return r.End - r.Start }

// Selector interprets pointer input over the waveform. It is a two-state
// machine: Idle, and Dragging with the anchor time recorded at pointer
// down. A down/up pair with no movement in between is a click and emits
// a seek instead of touching the selection.
type Selector struct {
	duration float64
	width    float64

	dragging bool
	moved    bool
	anchor   float64

	region Region
}

// New creates a selector for a source of the given duration, rendered
// at the given pixel width.
func New(duration, width float64) *Selector {
	return &Selector{duration: duration, width: width}
}

// SetDuration updates the source duration (seconds). The selection is
// not rescaled; callers clear it when the source changes.
func (s *Selector) SetDuration(d float64) { s.duration = d }

// SetWidth updates the render width in pixels.
func (s *Selector) SetWidth(w float64) { s.width = w }

// Region returns the committed selection.
func (s *Selector) Region() Region { return s.region }

// Dragging reports whether a drag is in progress.
func (s *Selector) Dragging() bool { return s.dragging }

// Clear resets the selection to the sentinel.
func (s *Selector) Clear() { s.region = Region{} }

// PixelToTime maps a render x-coordinate to a time in seconds,
// clamped to [0, duration].
func (s *Selector) PixelToTime(x float64) float64 {
	if s.width <= 0 || s.duration <= 0 {
		return 0
	}
	t := x / s.width * s.duration
	if t < 0 {
		return 0
	}
	if t > s.duration {
		return s.duration
	}
	return t
}

// TimeToPixel maps a time in seconds to a render x-coordinate.
func (s *Selector) TimeToPixel(t float64) float64 {
	if s.duration <= 0 {
		return 0
	}
	return t / s.duration * s.width
}

// PointerDown starts a potential drag anchored at x. The selection is
// not mutated until the pointer actually moves.
func (s *Selector) PointerDown(x float64) {
	s.dragging = true
	s.moved = false
	s.anchor = s.PixelToTime(x)
}

// PointerMove extends the drag to x and returns the live region.
// The second return is false when no drag is in progress (stray move
// events are ignored). The region is normalized so Start <= End.
func (s *Selector) PointerMove(x float64) (Region, bool) {
	if !s.dragging {
		return s.region, false
	}
	s.moved = true
	t := s.PixelToTime(x)
	if t < s.anchor {
		s.region = Region{Start: t, End: s.anchor}
	} else {
		s.region = Region{Start: s.anchor, End: t}
	}
	return s.region, true
}

// PointerUp ends the gesture. If the pointer never moved, the gesture
// was a click: the selection is left alone and the seek target is
// returned with ok=true. After a drag, the live region stays committed
// and ok is false.
func (s *Selector) PointerUp(x float64) (seek float64, ok bool) {
	if !s.dragging {
		return 0, false
	}
	s.dragging = false
	if !s.moved {
		return s.PixelToTime(x), true
	}
	return 0, false
}

// PointerLeave cancels the gesture, keeping whatever region the drag
// produced so far. No seek is emitted.
func (s *Selector) PointerLeave() {
	s.dragging = false
	s.moved = false
}
