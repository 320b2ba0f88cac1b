package session

import (
	"context"
	"log"

	"wavedeck/internal/playback"
	"wavedeck/internal/waveform"
)

// SyncPlayback keeps the engine's decoded audio aligned with the track
// store: after every load, edit, or separation it decodes whatever
// changed and installs it. Blocks until ctx is cancelled.
func (s *Session) SyncPlayback(ctx context.Context, engine *playback.Engine) {
	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	loaded := make(map[string]string) // track id -> decoded URL

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-sub.C:
			switch e.Kind {
			case EventUnloaded:
				engine.Clear()
				loaded = make(map[string]string)
			case EventTracks:
				snapshot := s.tracks.Snapshot()
				current := make(map[string]bool, len(snapshot))
				for _, t := range snapshot {
					current[t.ID] = true
					if loaded[t.ID] == t.URL {
						continue
					}
					path, err := s.LocalPath(ctx, t.URL)
					if err != nil {
						log.Printf("Playback sync: fetch %s: %v", t.ID, err)
						continue
					}
					samples, err := waveform.DecodeStereo(path)
					if err != nil {
						log.Printf("Playback sync: decode %s: %v", t.ID, err)
						continue
					}
					engine.SetTrackAudio(t.ID, samples)
					loaded[t.ID] = t.URL
				}
				for id := range loaded {
					if !current[id] {
						engine.RemoveTrack(id)
						delete(loaded, id)
					}
				}
			}
		}
	}
}
