// Package processor is the HTTP client for the remote audio processor:
// the FFmpeg-backed service that performs cuts, fades, source
// separation, and export rendering. The session never touches audio
// bytes itself; every edit is one request/response against this API.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Client communicates with the audio processor REST API.
type Client struct {
	baseURL  string
	cacheDir string // downloaded track audio is cached here
	http     *http.Client
}

// NewClient creates a processor client. timeout bounds one whole
// operation; separation is compute-heavy, so several minutes is normal.
func NewClient(baseURL, cacheDir string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		cacheDir: cacheDir,
		http:     &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the processor endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// UploadResult identifies a file stored on the processor.
type UploadResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// StemPair is the result of a two-stem separation.
type StemPair struct {
	Vocal string `json:"vocal"`
	Music string `json:"music"`
}

// StemSet is the result of a four-stem separation.
type StemSet struct {
	Vocals string `json:"vocals"`
	Drums  string `json:"drums"`
	Bass   string `json:"bass"`
	Other  string `json:"other"`
}

// TrackData is the track snapshot the export endpoints consume.
type TrackData struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
	Solo   bool    `json:"solo"`
}

// WaitForHealthy blocks until the processor responds to health checks.
func (c *Client) WaitForHealthy(ctx context.Context) error {
	log.Println("Waiting for audio processor to be ready...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			log.Println("Audio processor is healthy")
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}

		log.Println("Processor not ready, retrying in 5s...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// Upload stores a new source file on the processor.
func (c *Client) Upload(ctx context.Context, filename string, file io.Reader) (UploadResult, error) {
	var out UploadResult
	err := c.postMultipart(ctx, "/upload", filename, file, nil, &out)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}
	if out.URL == "" {
		return UploadResult{}, fmt.Errorf("upload: no url in response")
	}
	return out, nil
}

// Cut removes everything outside [start, end] seconds and returns the
// URL of the trimmed audio.
func (c *Client) Cut(ctx context.Context, filename string, file io.Reader, start, end float64) (string, error) {
	fields := map[string]string{
		"start_time": fmt.Sprintf("%g", start),
		"end_time":   fmt.Sprintf("%g", end),
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.postMultipart(ctx, "/cut", filename, file, fields, &out); err != nil {
		return "", fmt.Errorf("cut: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("cut: no url in response")
	}
	return out.URL, nil
}

// Fade applies a fade-in or fade-out of the given duration and returns
// the URL of the processed audio. fadeType and duration are forwarded
// as-is; the processor validates them.
func (c *Client) Fade(ctx context.Context, filename string, file io.Reader, fadeType string, duration float64) (string, error) {
	fields := map[string]string{
		"fade_type": fadeType,
		"duration":  fmt.Sprintf("%g", duration),
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.postMultipart(ctx, "/fade", filename, file, fields, &out); err != nil {
		return "", fmt.Errorf("fade: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("fade: no url in response")
	}
	return out.URL, nil
}

// SeparateVocalMusic splits the file into vocal and music stems.
// A response missing either stem is an error: partial stem sets are
// never returned to the caller.
func (c *Client) SeparateVocalMusic(ctx context.Context, filename string, file io.Reader) (StemPair, error) {
	var out StemPair
	if err := c.postMultipart(ctx, "/separate/vocal-music", filename, file, nil, &out); err != nil {
		return StemPair{}, fmt.Errorf("separate vocal/music: %w", err)
	}
	if out.Vocal == "" || out.Music == "" {
		return StemPair{}, fmt.Errorf("separate vocal/music: incomplete stem set")
	}
	return out, nil
}

// SeparateInstruments splits the file into vocals, drums, bass, and
// other stems. All four must be present.
func (c *Client) SeparateInstruments(ctx context.Context, filename string, file io.Reader) (StemSet, error) {
	var out StemSet
	if err := c.postMultipart(ctx, "/separate/instruments", filename, file, nil, &out); err != nil {
		return StemSet{}, fmt.Errorf("separate instruments: %w", err)
	}
	if out.Vocals == "" || out.Drums == "" || out.Bass == "" || out.Other == "" {
		return StemSet{}, fmt.Errorf("separate instruments: incomplete stem set")
	}
	return out, nil
}

// ExportMix renders the given track snapshot into one downloadable
// artifact. format and quality are opaque to the client.
func (c *Client) ExportMix(ctx context.Context, tracks []TrackData, format, quality string) (string, error) {
	body := struct {
		Tracks  []TrackData `json:"tracks"`
		Format  string      `json:"format"`
		Quality string      `json:"quality"`
	}{tracks, format, quality}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, "/export/mix", body, &out); err != nil {
		return "", fmt.Errorf("export mix: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("export mix: no url in response")
	}
	return out.URL, nil
}

// ExportTrack renders a single track with its volume applied.
func (c *Client) ExportTrack(ctx context.Context, t TrackData, format, quality string) (string, error) {
	body := struct {
		Track   TrackData `json:"track"`
		Format  string    `json:"format"`
		Quality string    `json:"quality"`
	}{t, format, quality}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, "/export/track", body, &out); err != nil {
		return "", fmt.Errorf("export track: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("export track: no url in response")
	}
	return out.URL, nil
}

// Download fetches a processor-relative audio URL into the local cache
// and returns the file path. Used both to re-submit a track's current
// audio for the next edit and to feed the playback engine.
func (c *Client) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url, nil)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(c.cacheDir, "wavedeck-"+uuid.NewString()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return path, nil
}

func (c *Client) postMultipart(ctx context.Context, path, filename string, file io.Reader, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError extracts the processor's error detail from a non-2xx reply.
func apiError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Detail != "" {
		return fmt.Errorf("processor: %s (status %d)", body.Detail, resp.StatusCode)
	}
	return fmt.Errorf("processor: status %d", resp.StatusCode)
}
