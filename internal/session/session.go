// Package session orchestrates edit, separation, and export operations
// against the remote audio processor while keeping track state
// consistent: operations are strictly serialized behind a busy latch,
// failures never leave partial results behind, and every state change
// is announced on the event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"wavedeck/internal/processor"
	"wavedeck/internal/selection"
	"wavedeck/internal/track"
	"wavedeck/internal/waveform"
)

var (
	// ErrBusy is returned when an operation is requested while another
	// is still in flight. The caller retries after the current one
	// settles; nothing is queued.
	ErrBusy = errors.New("session: operation already in progress")

	// ErrNoSelection is returned by Cut when the region is the
	// no-selection sentinel. No network call is made.
	ErrNoSelection = errors.New("session: no region selected")

	// ErrNoSource is returned when an operation needs a loaded file.
	ErrNoSource = errors.New("session: no file loaded")
)

// OperationError wraps a remote failure with the operation that
// attempted it, so one notification can be scoped to one action.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Source is the immutable description of the loaded file.
type Source struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
}

// Status is the session's processing state.
type Status struct {
	Busy    bool   `json:"busy"`
	Message string `json:"message"`
}

// Session is one editing session over a single loaded file.
type Session struct {
	client       *processor.Client
	tracks       *track.Store
	bus          *bus
	envelopeSize int

	mu       sync.Mutex
	busy     bool
	message  string
	source   *Source
	envelope waveform.Envelope
	region   selection.Region
	local    map[string]string // processor URL -> cached local path
}

// New creates an empty session backed by the given processor client.
func New(client *processor.Client, envelopeSize int) *Session {
	return &Session{
		client:       client,
		tracks:       track.NewStore(),
		bus:          newBus(),
		envelopeSize: envelopeSize,
		local:        make(map[string]string),
	}
}

// Tracks exposes the session's track store. Mixer input (volume, mute,
// solo) goes straight to the store; it never conflicts with the
// session's own mutations, which only touch URLs and membership.
func (s *Session) Tracks() *track.Store { return s.tracks }

// Subscribe registers an event listener.
func (s *Session) Subscribe() *Subscriber { return s.bus.subscribe() }

// Unsubscribe removes an event listener.
func (s *Session) Unsubscribe(sub *Subscriber) { s.bus.unsubscribe(sub) }

// Status returns the current processing state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Busy: s.busy, Message: s.message}
}

// Source returns the loaded file, or nil.
func (s *Session) Source() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Envelope returns the waveform envelope of the loaded file.
func (s *Session) Envelope() waveform.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelope
}

// Selection returns the current region.
func (s *Session) Selection() selection.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// SetSelection commits a region produced by the UI's selector. Regions
// are normalized and clamped to the source duration.
func (s *Session) SetSelection(r selection.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	if r.Start < 0 {
		r.Start = 0
	}
	if s.source != nil && r.End > s.source.Duration {
		r.End = s.source.Duration
	}
	s.region = r
}

// ClearSelection resets the region to the sentinel.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.region = selection.Region{}
	s.mu.Unlock()
}

// Load uploads the file at path to the processor, samples its
// waveform, and resets the session around it as the original track.
func (s *Session) Load(ctx context.Context, path string) (*Source, error) {
	if err := s.begin("load", "Loading audio..."); err != nil {
		return nil, err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: "load", Message: "Loading audio..."})

	// Sample before uploading: an undecodable file fails locally,
	// without a round trip.
	env, duration, err := waveform.Sample(path, s.envelopeSize)
	if err != nil {
		return nil, s.fail("load", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, s.fail("load", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, s.fail("load", err)
	}

	up, err := s.client.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, s.fail("load", err)
	}

	src := &Source{
		ID:       up.ID,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		Duration: duration,
		URL:      up.URL,
	}

	s.mu.Lock()
	s.source = src
	s.envelope = env
	s.region = selection.Region{}
	s.local = map[string]string{up.URL: path}
	s.mu.Unlock()

	s.tracks.Reset(track.Track{
		ID:     track.OriginalID,
		Name:   src.Name,
		URL:    up.URL,
		Kind:   track.KindOriginal,
		Volume: 1,
	})

	log.Printf("Loaded %s (%.1fs, %d bytes)", src.Name, duration, src.Size)
	s.bus.publish(Event{Kind: EventLoaded, Op: "load", Message: src.Name})
	s.bus.publish(Event{Kind: EventTracks})
	s.bus.publish(Event{Kind: EventCompleted, Op: "load"})
	return src, nil
}

// Unload removes the loaded file and resets all session state.
func (s *Session) Unload() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.source = nil
	s.envelope = nil
	s.region = selection.Region{}
	s.local = make(map[string]string)
	s.mu.Unlock()

	s.tracks.Reset(track.Track{})
	s.bus.publish(Event{Kind: EventUnloaded})
	s.bus.publish(Event{Kind: EventTracks})
	return nil
}

// Cut removes everything outside the selected region from the original
// track. Destructive: the original's URL is replaced and the selection
// cleared. With no selection it fails locally, before any network call.
func (s *Session) Cut(ctx context.Context) error {
	region := s.Selection()
	if region.Empty() {
		return ErrNoSelection
	}
	if err := s.begin("cut", "Cutting audio..."); err != nil {
		return err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: "cut", Message: "Cutting audio..."})

	name, f, err := s.openOriginal(ctx)
	if err != nil {
		return s.fail("cut", err)
	}
	defer f.Close()

	url, err := s.client.Cut(ctx, name, f, region.Start, region.End)
	if err != nil {
		return s.fail("cut", err)
	}

	s.tracks.Update(track.OriginalID, track.Patch{URL: &url})
	s.ClearSelection()

	log.Printf("Cut %.2fs-%.2fs -> %s", region.Start, region.End, url)
	s.bus.publish(Event{Kind: EventTracks})
	s.bus.publish(Event{Kind: EventCompleted, Op: "cut", URL: url})
	return nil
}

// Fade applies a fade-in or fade-out to the original track, replacing
// its URL. fadeType and duration are forwarded untouched; the
// processor rejects invalid values.
func (s *Session) Fade(ctx context.Context, fadeType string, duration float64) error {
	msg := fmt.Sprintf("Applying fade %s...", fadeType)
	if err := s.begin("fade", msg); err != nil {
		return err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: "fade", Message: msg})

	name, f, err := s.openOriginal(ctx)
	if err != nil {
		return s.fail("fade", err)
	}
	defer f.Close()

	url, err := s.client.Fade(ctx, name, f, fadeType, duration)
	if err != nil {
		return s.fail("fade", err)
	}

	s.tracks.Update(track.OriginalID, track.Patch{URL: &url})

	log.Printf("Fade %s (%.1fs) -> %s", fadeType, duration, url)
	s.bus.publish(Event{Kind: EventTracks})
	s.bus.publish(Event{Kind: EventCompleted, Op: "fade", URL: url})
	return nil
}

// SeparateVocalMusic splits the original into vocal and music stems
// and appends them as two new tracks. Existing tracks are untouched.
func (s *Session) SeparateVocalMusic(ctx context.Context) error {
	const op = "separate-vocal-music"
	if err := s.begin(op, "Separating vocals and music... This can take a while."); err != nil {
		return err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: op, Message: "Separating vocals and music..."})

	name, f, err := s.openOriginal(ctx)
	if err != nil {
		return s.fail(op, err)
	}
	defer f.Close()

	stems, err := s.client.SeparateVocalMusic(ctx, name, f)
	if err != nil {
		return s.fail(op, err)
	}

	run := stemRunID()
	added := s.tracks.Add(
		stemTrack(track.KindVocal, "Vocal", stems.Vocal, run),
		stemTrack(track.KindMusic, "Music", stems.Music, run),
	)
	if !added {
		return s.fail(op, fmt.Errorf("stem track id collision"))
	}

	log.Printf("Separated vocal/music (run %s)", run)
	s.bus.publish(Event{Kind: EventTracks})
	s.bus.publish(Event{Kind: EventCompleted, Op: op})
	return nil
}

// SeparateInstruments splits the original into vocals, drums, bass,
// and other stems and appends them as four new tracks. All four stems
// are committed together or not at all.
func (s *Session) SeparateInstruments(ctx context.Context) error {
	const op = "separate-instruments"
	if err := s.begin(op, "Separating instruments... This can take a while."); err != nil {
		return err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: op, Message: "Separating instruments..."})

	name, f, err := s.openOriginal(ctx)
	if err != nil {
		return s.fail(op, err)
	}
	defer f.Close()

	stems, err := s.client.SeparateInstruments(ctx, name, f)
	if err != nil {
		return s.fail(op, err)
	}

	run := stemRunID()
	added := s.tracks.Add(
		stemTrack(track.KindVocals, "Vocals", stems.Vocals, run),
		stemTrack(track.KindDrums, "Drums", stems.Drums, run),
		stemTrack(track.KindBass, "Bass", stems.Bass, run),
		stemTrack(track.KindOther, "Other", stems.Other, run),
	)
	if !added {
		return s.fail(op, fmt.Errorf("stem track id collision"))
	}

	log.Printf("Separated instruments (run %s)", run)
	s.bus.publish(Event{Kind: EventTracks})
	s.bus.publish(Event{Kind: EventCompleted, Op: op})
	return nil
}

// ExportMix renders the current track snapshot into one artifact and
// returns its URL. Read-only over the track store.
func (s *Session) ExportMix(ctx context.Context, format, quality string) (string, error) {
	const op = "export-mix"
	if err := s.begin(op, "Exporting mix..."); err != nil {
		return "", err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: op, Message: "Exporting mix..."})

	snapshot := s.tracks.Snapshot()
	data := make([]processor.TrackData, len(snapshot))
	for i, t := range snapshot {
		data[i] = processor.TrackData{ID: t.ID, URL: t.URL, Volume: t.Volume, Muted: t.Muted, Solo: t.Solo}
	}

	url, err := s.client.ExportMix(ctx, data, format, quality)
	if err != nil {
		return "", s.fail(op, err)
	}

	log.Printf("Exported mix -> %s", url)
	s.bus.publish(Event{Kind: EventCompleted, Op: op, URL: url})
	return url, nil
}

// ExportTrack renders one track with its volume applied.
func (s *Session) ExportTrack(ctx context.Context, id, format, quality string) (string, error) {
	const op = "export-track"
	t, ok := s.tracks.Get(id)
	if !ok {
		return "", &OperationError{Op: op, Err: fmt.Errorf("unknown track %q", id)}
	}
	if err := s.begin(op, "Exporting track "+t.Name+"..."); err != nil {
		return "", err
	}
	defer s.finish()
	s.bus.publish(Event{Kind: EventProcessing, Op: op, Message: "Exporting " + t.Name + "..."})

	url, err := s.client.ExportTrack(ctx, processor.TrackData{
		ID: t.ID, URL: t.URL, Volume: t.Volume, Muted: t.Muted, Solo: t.Solo,
	}, format, quality)
	if err != nil {
		return "", s.fail(op, err)
	}

	log.Printf("Exported track %s -> %s", id, url)
	s.bus.publish(Event{Kind: EventCompleted, Op: op, URL: url})
	return url, nil
}

// LocalPath resolves a processor URL to a local audio file, downloading
// and caching it on first use. The playback engine feeds from this.
func (s *Session) LocalPath(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	if path, ok := s.local[url]; ok {
		s.mu.Unlock()
		return path, nil
	}
	s.mu.Unlock()

	path, err := s.client.Download(ctx, url)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.local[url] = path
	s.mu.Unlock()
	return path, nil
}

// begin acquires the busy latch. The latch, not the lock, is held
// across remote I/O; Status and mixer updates stay responsive.
func (s *Session) begin(op, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if op != "load" && s.source == nil {
		return ErrNoSource
	}
	s.busy = true
	s.message = message
	return nil
}

// finish releases the busy latch. Deferred by every operation so the
// latch clears on every exit path.
func (s *Session) finish() {
	s.mu.Lock()
	s.busy = false
	s.message = ""
	s.mu.Unlock()
}

// fail converts a remote error into the one terminal event for the
// attempted operation. The track store is never touched on this path.
func (s *Session) fail(op string, err error) error {
	opErr := &OperationError{Op: op, Err: err}
	log.Printf("Operation %s: %v", op, err)
	s.bus.publish(Event{Kind: EventFailed, Op: op, Err: opErr.Error()})
	return opErr
}

// openOriginal returns a reader over the original track's current
// audio, downloading the latest edit result if needed.
func (s *Session) openOriginal(ctx context.Context) (string, *os.File, error) {
	orig, ok := s.tracks.Get(track.OriginalID)
	if !ok {
		return "", nil, ErrNoSource
	}
	path, err := s.LocalPath(ctx, orig.URL)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	return orig.Name, f, nil
}

func stemRunID() string {
	return uuid.NewString()[:8]
}

func stemTrack(kind track.Kind, name, url, run string) track.Track {
	return track.Track{
		ID:     fmt.Sprintf("%s-%s", kind, run),
		Name:   name,
		URL:    url,
		Kind:   kind,
		Volume: 1,
	}
}
