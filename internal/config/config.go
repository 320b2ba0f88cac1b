package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Remote processor connection
	ProcessorURL   string
	RequestTimeout time.Duration // upper bound for one remote operation

	// Server
	Port int

	// Session behavior
	EnvelopeSize  int    // waveform envelope resolution (buckets)
	CacheDir      string // downloaded track audio lives here
	ExportFormat  string // default export format: mp3, wav
	ExportQuality string // default export quality: high, medium, low

	// Preview stream
	PreviewBitrate int // kbps for the MP3 preview encoder
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		ProcessorURL:   envStr("WAVEDECK_PROCESSOR_URL", "http://localhost:8000"),
		RequestTimeout: time.Duration(envInt("WAVEDECK_REQUEST_TIMEOUT", 300)) * time.Second,

		Port: envInt("WAVEDECK_PORT", 8080),

		EnvelopeSize:  envInt("WAVEDECK_ENVELOPE_SIZE", 1000),
		CacheDir:      envStr("WAVEDECK_CACHE_DIR", os.TempDir()),
		ExportFormat:  envStr("WAVEDECK_EXPORT_FORMAT", "mp3"),
		ExportQuality: envStr("WAVEDECK_EXPORT_QUALITY", "high"),

		PreviewBitrate: envInt("WAVEDECK_PREVIEW_BITRATE", 192),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
