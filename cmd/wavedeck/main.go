package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"wavedeck/internal/config"
	"wavedeck/internal/playback"
	"wavedeck/internal/processor"
	"wavedeck/internal/selection"
	"wavedeck/internal/session"
	"wavedeck/internal/stream"
	"wavedeck/internal/track"
	"wavedeck/internal/waveform"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := processor.NewClient(cfg.ProcessorURL, cfg.CacheDir, cfg.RequestTimeout)

	log.Println("wavedeck starting up...")

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer healthCancel()
	if err := client.WaitForHealthy(healthCtx); err != nil {
		log.Fatalf("Audio processor not available: %v", err)
	}

	sess := session.New(client, cfg.EnvelopeSize)

	// Playback engine mixes audible tracks into the preview stream
	engine := playback.NewEngine(sess.Tracks())
	go engine.Run(ctx)

	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, engine.Frames())

	go sess.SyncPlayback(ctx, engine)

	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()

	// Audio preview streams
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, cfg.PreviewBitrate))
	mux.Handle("/offer", webrtcHandler)

	// Event feed
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveEvents(sess, w, r)
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st := sess.Status()
		pos, dur := engine.Position()

		var src map[string]any
		if s := sess.Source(); s != nil {
			src = map[string]any{
				"id": s.ID, "name": s.Name, "size": s.Size, "duration": s.Duration,
			}
		}

		writeJSON(w, map[string]any{
			"busy":             st.Busy,
			"message":          st.Message,
			"source":           src,
			"selection":        sess.Selection(),
			"position":         pos,
			"duration":         dur,
			"playing":          engine.Playing(),
			"http_listeners":   broadcaster.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/load", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			src, err := loadUpload(r, sess, cfg.CacheDir)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, map[string]any{"ok": true, "id": src.ID, "name": src.Name, "duration": src.Duration})
		case http.MethodDelete:
			if err := sess.Unload(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/waveform", func(w http.ResponseWriter, r *http.Request) {
		src := sess.Source()
		if src == nil {
			http.Error(w, "no file loaded", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"envelope": sess.Envelope(),
			"duration": src.Duration,
		})
	})

	mux.HandleFunc("/api/selection", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, sess.Selection())
		case http.MethodPost:
			var req selection.Region
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid region", http.StatusBadRequest)
				return
			}
			sess.SetSelection(req)
			writeJSON(w, map[string]any{"ok": true, "selection": sess.Selection()})
		case http.MethodDelete:
			sess.ClearSelection()
			writeJSON(w, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/cut", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := sess.Cut(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/fade", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Type     string  `json:"type"`
			Duration float64 `json:"duration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := sess.Fade(r.Context(), req.Type, req.Duration); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/separate/vocal-music", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := sess.SeparateVocalMusic(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "tracks": sess.Tracks().Snapshot()})
	})

	mux.HandleFunc("/api/separate/instruments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := sess.SeparateInstruments(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "tracks": sess.Tracks().Snapshot()})
	})

	mux.HandleFunc("/api/export/mix", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Format  string `json:"format"`
			Quality string `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Format == "" {
			req.Format = cfg.ExportFormat
		}
		if req.Quality == "" {
			req.Quality = cfg.ExportQuality
		}
		url, err := sess.ExportMix(r.Context(), req.Format, req.Quality)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "url": url})
	})

	mux.HandleFunc("/api/export/track", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID      string `json:"id"`
			Format  string `json:"format"`
			Quality string `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Format == "" {
			req.Format = cfg.ExportFormat
		}
		if req.Quality == "" {
			req.Quality = cfg.ExportQuality
		}
		url, err := sess.ExportTrack(r.Context(), req.ID, req.Format, req.Quality)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "url": url})
	})

	mux.HandleFunc("/api/tracks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sess.Tracks().Snapshot())
	})

	mux.HandleFunc("/api/tracks/update", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID     string   `json:"id"`
			Name   *string  `json:"name"`
			Volume *float64 `json:"volume"`
			Muted  *bool    `json:"muted"`
			Solo   *bool    `json:"solo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		sess.Tracks().Update(req.ID, track.Patch{
			Name: req.Name, Volume: req.Volume, Muted: req.Muted, Solo: req.Solo,
		})
		writeJSON(w, map[string]any{"ok": true, "tracks": sess.Tracks().Snapshot()})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		engine.Play()
		writeJSON(w, map[string]any{"ok": true, "playing": engine.Playing()})
	})

	mux.HandleFunc("/api/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		engine.Pause()
		writeJSON(w, map[string]any{"ok": true, "playing": false})
	})

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Position float64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		engine.Seek(req.Position)
		pos, _ := engine.Position()
		writeJSON(w, map[string]any{"ok": true, "position": pos})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("wavedeck live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// loadUpload spools the uploaded file to the cache directory and loads
// it into the session. Also accepts a JSON body {"path": ...} pointing
// at a file already on disk.
func loadUpload(r *http.Request, sess *session.Session, cacheDir string) (*session.Source, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			return nil, fmt.Errorf("%w: need a multipart file or a path", errBadRequest)
		}
		return sess.Load(r.Context(), req.Path)
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file part", errBadRequest)
	}
	defer f.Close()

	path := filepath.Join(cacheDir, "wavedeck-upload-"+filepath.Base(hdr.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, f); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}
	return sess.Load(r.Context(), path)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

var errBadRequest = errors.New("bad request")

// writeError maps session errors onto HTTP status codes: caller
// mistakes are 4xx, remote processor failures are 502.
func writeError(w http.ResponseWriter, err error) {
	var decodeErr *waveform.DecodeError
	switch {
	case errors.Is(err, session.ErrNoSelection), errors.Is(err, errBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoSource):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &decodeErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveEvents pushes session events over a WebSocket.
func serveEvents(sess *session.Session, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := sess.Subscribe()
	defer sess.Unsubscribe(sub)

	// Reader goroutine: we never expect client messages, but reading
	// is how gorilla surfaces close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sess.Unsubscribe(sub)
				return
			}
		}
	}()

	for {
		select {
		case <-sub.Done():
			return
		case e := <-sub.C:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
