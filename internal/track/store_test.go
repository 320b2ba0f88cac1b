package track

import (
	"reflect"
	"testing"
)

func original() Track {
	return Track{ID: OriginalID, Name: "song.mp3", URL: "/uploads/a.mp3", Kind: KindOriginal, Volume: 1}
}

func TestResetInstallsOriginal(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	got, ok := s.Get(OriginalID)
	if !ok {
		t.Fatal("original track missing after reset")
	}
	if got.Kind != KindOriginal || got.Volume != 1 {
		t.Errorf("original = %+v", got)
	}
}

func TestResetEmptyClearsStore(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	s.Add(Track{ID: "vocal-1", Kind: KindVocal, Volume: 1})

	s.Reset(Track{})
	if s.Len() != 0 {
		t.Errorf("Len after empty reset = %d, want 0", s.Len())
	}
}

func TestAddAppendsInOrder(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	if !s.Add(
		Track{ID: "vocal-1", Kind: KindVocal, Volume: 1},
		Track{ID: "music-1", Kind: KindMusic, Volume: 1},
	) {
		t.Fatal("Add rejected a valid batch")
	}

	snap := s.Snapshot()
	ids := []string{snap[0].ID, snap[1].ID, snap[2].ID}
	if !reflect.DeepEqual(ids, []string{OriginalID, "vocal-1", "music-1"}) {
		t.Errorf("order = %v", ids)
	}
}

func TestAddIsAtomic(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	// Second entry collides with the original: the whole batch must be
	// rejected, not just the colliding track.
	ok := s.Add(
		Track{ID: "drums-1", Kind: KindDrums, Volume: 1},
		Track{ID: OriginalID, Kind: KindBass, Volume: 1},
	)
	if ok {
		t.Fatal("Add accepted a colliding batch")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d after rejected batch, want 1", s.Len())
	}
}

func TestAddRejectsInternalDuplicate(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	if s.Add(Track{ID: "x"}, Track{ID: "x"}) {
		t.Error("Add accepted a batch with duplicate ids")
	}
	if s.Add(Track{ID: ""}) {
		t.Error("Add accepted an empty id")
	}
}

func TestUpdateUnknownIDIsNoOp(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	before := s.Snapshot()

	v := 0.5
	s.Update("no-such-track", Patch{Volume: &v}) // must not panic

	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Error("unknown-id update changed the track list")
	}
}

func TestUpdatePartialFields(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	v := 0.25
	muted := true
	s.Update(OriginalID, Patch{Volume: &v, Muted: &muted})

	got, _ := s.Get(OriginalID)
	if got.Volume != 0.25 || !got.Muted {
		t.Errorf("after patch: %+v", got)
	}
	if got.URL != "/uploads/a.mp3" || got.Name != "song.mp3" {
		t.Error("patch touched fields it did not name")
	}

	url := "/outputs/cut.wav"
	s.Update(OriginalID, Patch{URL: &url})
	got, _ = s.Get(OriginalID)
	if got.URL != "/outputs/cut.wav" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.Volume != 0.25 {
		t.Error("URL patch reset volume")
	}
}

func TestUpdateClampsVolume(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	for _, tt := range []struct{ in, want float64 }{{-2, 0}, {0.7, 0.7}, {9, 1}} {
		v := tt.in
		s.Update(OriginalID, Patch{Volume: &v})
		if got, _ := s.Get(OriginalID); got.Volume != tt.want {
			t.Errorf("volume %v clamped to %v, want %v", tt.in, got.Volume, tt.want)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Reset(original())

	snap := s.Snapshot()
	snap[0].Volume = 0

	if got, _ := s.Get(OriginalID); got.Volume != 1 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestAudibleSoloNarrowsMuteWins(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	s.Add(
		Track{ID: "vocal-1", Kind: KindVocal, Volume: 1, Solo: true},
		Track{ID: "music-1", Kind: KindMusic, Volume: 1, Muted: true},
	)

	audible := s.Audible()
	if len(audible) != 1 || audible[0].ID != "vocal-1" {
		t.Fatalf("audible = %+v, want only the soloed track", audible)
	}
}

func TestAudibleMutedSoloExcluded(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	s.Add(Track{ID: "vocal-1", Kind: KindVocal, Volume: 1, Solo: true, Muted: true})

	// Mute always excludes, even a soloed track. With the only solo
	// muted, the solo set is still active, so nothing plays.
	if got := s.Audible(); len(got) != 0 {
		t.Errorf("audible = %+v, want none", got)
	}
}

func TestAudibleNoSoloPlaysUnmuted(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	s.Add(
		Track{ID: "a", Volume: 1},
		Track{ID: "b", Volume: 1, Muted: true},
	)

	got := s.Audible()
	if len(got) != 2 {
		t.Fatalf("audible = %+v, want original and a", got)
	}
	if got[0].ID != OriginalID || got[1].ID != "a" {
		t.Errorf("audible ids = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestEffectiveGain(t *testing.T) {
	s := NewStore()
	s.Reset(original())
	s.Add(
		Track{ID: "a", Volume: 0.8, Solo: true},
		Track{ID: "b", Volume: 0.6},
	)

	if g := s.EffectiveGain("a"); g != 0.8 {
		t.Errorf("soloed gain = %v, want 0.8", g)
	}
	if g := s.EffectiveGain("b"); g != 0 {
		t.Errorf("non-solo gain under solo = %v, want 0", g)
	}
	if g := s.EffectiveGain("missing"); g != 0 {
		t.Errorf("unknown id gain = %v, want 0", g)
	}
}
