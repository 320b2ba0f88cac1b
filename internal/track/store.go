// Package track owns the ordered set of tracks in a session and
// resolves their mute/solo state into an audible mix.
package track

import "sync"

// Kind labels what a track holds: the loaded original or one stem of a
// separation run.
type Kind string

const (
	KindOriginal Kind = "original"
	KindVocal    Kind = "vocal"
	KindMusic    Kind = "music"
	KindVocals   Kind = "vocals"
	KindDrums    Kind = "drums"
	KindBass     Kind = "bass"
	KindPiano    Kind = "piano"
	KindOther    Kind = "other"
)

// OriginalID is the fixed id of the track created at load time.
const OriginalID = "original"

// Track is one independently mixable audio lane.
type Track struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Kind   Kind    `json:"kind"`
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
	Solo   bool    `json:"solo"`
}

// Patch is a partial track update. Nil fields are left untouched.
// The mixer UI only ever sends Volume/Muted/Solo; the edit session
// only ever sends URL, so the two mutation sources never collide.
type Patch struct {
	Name   *string  `json:"name,omitempty"`
	URL    *string  `json:"url,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
	Solo   *bool    `json:"solo,omitempty"`
}

// Store holds the ordered track set. All mutation goes through Reset,
// Add, and Update; readers only ever see copies.
type Store struct {
	mu     sync.RWMutex
	tracks []Track
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Reset drops every track and installs the given original. Called when
// a file is loaded or removed (with a zero Track it simply empties the
// store).
func (s *Store) Reset(original Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if original.ID == "" {
		s.tracks = nil
		return
	}
	s.tracks = []Track{original}
}

// Add appends tracks atomically in the given order. If any id is empty
// or already present, nothing is added and the collision is reported;
// a partial stem set must never be committed.
func (s *Store) Add(tracks ...Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.tracks)+len(tracks))
	for _, t := range s.tracks {
		seen[t.ID] = struct{}{}
	}
	for _, t := range tracks {
		if t.ID == "" {
			return false
		}
		if _, dup := seen[t.ID]; dup {
			return false
		}
		seen[t.ID] = struct{}{}
	}

	s.tracks = append(s.tracks, tracks...)
	return true
}

// Update applies a partial patch to the track with the given id.
// Unknown ids are a silent no-op: mixer callbacks are fire-and-forget
// and must never crash the session.
func (s *Store) Update(id string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tracks {
		if s.tracks[i].ID != id {
			continue
		}
		if p.Name != nil {
			s.tracks[i].Name = *p.Name
		}
		if p.URL != nil {
			s.tracks[i].URL = *p.URL
		}
		if p.Volume != nil {
			v := *p.Volume
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			s.tracks[i].Volume = v
		}
		if p.Muted != nil {
			s.tracks[i].Muted = *p.Muted
		}
		if p.Solo != nil {
			s.tracks[i].Solo = *p.Solo
		}
		return
	}
}

// Get returns a copy of the track with the given id.
func (s *Store) Get(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// Snapshot returns a copy of every track in order.
func (s *Store) Snapshot() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Len returns the number of tracks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Audible returns the tracks that contribute to the mix: a track plays
// iff it is not muted and either no track is soloed or it is. Solo
// narrows the audible set; mute always wins.
func (s *Store) Audible() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return audible(s.tracks)
}

// EffectiveGain returns the gain the mix applies to the track with the
// given id: its volume when it contributes, otherwise 0.
func (s *Store) EffectiveGain(id string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range audible(s.tracks) {
		if t.ID == id {
			return t.Volume
		}
	}
	return 0
}

func audible(tracks []Track) []Track {
	anySolo := false
	for _, t := range tracks {
		if t.Solo {
			anySolo = true
			break
		}
	}
	var out []Track
	for _, t := range tracks {
		if t.Muted {
			continue
		}
		if anySolo && !t.Solo {
			continue
		}
		out = append(out, t)
	}
	return out
}
