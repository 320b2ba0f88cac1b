package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	envVars := []string{
		"WAVEDECK_PROCESSOR_URL", "WAVEDECK_REQUEST_TIMEOUT",
		"WAVEDECK_PORT", "WAVEDECK_ENVELOPE_SIZE", "WAVEDECK_CACHE_DIR",
		"WAVEDECK_EXPORT_FORMAT", "WAVEDECK_EXPORT_QUALITY",
		"WAVEDECK_PREVIEW_BITRATE",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.ProcessorURL != "http://localhost:8000" {
		t.Errorf("ProcessorURL = %q, want default", cfg.ProcessorURL)
	}
	if cfg.RequestTimeout != 300*time.Second {
		t.Errorf("RequestTimeout = %v, want 300s", cfg.RequestTimeout)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.EnvelopeSize != 1000 {
		t.Errorf("EnvelopeSize = %d, want 1000", cfg.EnvelopeSize)
	}
	if cfg.CacheDir != os.TempDir() {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, os.TempDir())
	}
	if cfg.ExportFormat != "mp3" {
		t.Errorf("ExportFormat = %q, want 'mp3'", cfg.ExportFormat)
	}
	if cfg.ExportQuality != "high" {
		t.Errorf("ExportQuality = %q, want 'high'", cfg.ExportQuality)
	}
	if cfg.PreviewBitrate != 192 {
		t.Errorf("PreviewBitrate = %d, want 192", cfg.PreviewBitrate)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WAVEDECK_PROCESSOR_URL", "http://editor-api:9000")
	t.Setenv("WAVEDECK_REQUEST_TIMEOUT", "60")
	t.Setenv("WAVEDECK_PORT", "3000")
	t.Setenv("WAVEDECK_ENVELOPE_SIZE", "500")
	t.Setenv("WAVEDECK_CACHE_DIR", "/var/cache/wavedeck")
	t.Setenv("WAVEDECK_EXPORT_FORMAT", "wav")
	t.Setenv("WAVEDECK_EXPORT_QUALITY", "low")
	t.Setenv("WAVEDECK_PREVIEW_BITRATE", "128")

	cfg := Load()

	if cfg.ProcessorURL != "http://editor-api:9000" {
		t.Errorf("ProcessorURL = %q, want env override", cfg.ProcessorURL)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", cfg.RequestTimeout)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.EnvelopeSize != 500 {
		t.Errorf("EnvelopeSize = %d, want 500", cfg.EnvelopeSize)
	}
	if cfg.CacheDir != "/var/cache/wavedeck" {
		t.Errorf("CacheDir = %q, want env override", cfg.CacheDir)
	}
	if cfg.ExportFormat != "wav" {
		t.Errorf("ExportFormat = %q, want 'wav'", cfg.ExportFormat)
	}
	if cfg.ExportQuality != "low" {
		t.Errorf("ExportQuality = %q, want 'low'", cfg.ExportQuality)
	}
	if cfg.PreviewBitrate != 128 {
		t.Errorf("PreviewBitrate = %d, want 128", cfg.PreviewBitrate)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("WAVEDECK_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvStrEmpty(t *testing.T) {
	os.Unsetenv("WAVEDECK_PROCESSOR_URL")
	cfg := Load()
	if cfg.ProcessorURL != "http://localhost:8000" {
		t.Errorf("Unset env should use fallback: got %q", cfg.ProcessorURL)
	}
}
