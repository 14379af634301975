package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.VisionModel != "gemini-1.5-pro" {
		t.Errorf("VisionModel = %q, want the default", cfg.VisionModel)
	}
	if cfg.EmbedModel != "text-embedding-004" {
		t.Errorf("EmbedModel = %q, want the default", cfg.EmbedModel)
	}
	if cfg.ImageTimeout != 30*time.Second {
		t.Errorf("ImageTimeout = %v, want 30s", cfg.ImageTimeout)
	}
	if cfg.VideoTimeout != 10*time.Minute {
		t.Errorf("VideoTimeout = %v, want 10m", cfg.VideoTimeout)
	}
	if cfg.EmbedProvider != ProviderGemini {
		t.Errorf("EmbedProvider = %q, want %q", cfg.EmbedProvider, ProviderGemini)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CAMSIFT_API_KEYS", "key1, key2 ,key3,")
	t.Setenv("CAMSIFT_VISION_MODEL", "gemini-1.5-flash")
	t.Setenv("CAMSIFT_IMAGE_TIMEOUT", "45s")
	t.Setenv("CAMSIFT_MAX_RETRIES", "7")
	t.Setenv("CAMSIFT_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("CAMSIFT_LOG_LEVEL", "debug")

	cfg := Load()

	if len(cfg.APIKeys) != 3 || cfg.APIKeys[1] != "key2" {
		t.Errorf("APIKeys = %v, want three trimmed keys", cfg.APIKeys)
	}
	if cfg.VisionModel != "gemini-1.5-flash" {
		t.Errorf("VisionModel = %q, want the override", cfg.VisionModel)
	}
	if cfg.ImageTimeout != 45*time.Second {
		t.Errorf("ImageTimeout = %v, want 45s", cfg.ImageTimeout)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.MaxRetries)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", cfg.RequestsPerSecond)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoad_FallsBackToGoogleAPIKey(t *testing.T) {
	t.Setenv("CAMSIFT_API_KEYS", "")
	t.Setenv("GOOGLE_API_KEY", "solo-key")

	cfg := Load()

	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0] != "solo-key" {
		t.Errorf("APIKeys = %v, want [solo-key]", cfg.APIKeys)
	}
}

func TestLoad_MalformedValuesKeepDefaults(t *testing.T) {
	t.Setenv("CAMSIFT_MAX_RETRIES", "not-a-number")
	t.Setenv("CAMSIFT_IMAGE_TIMEOUT", "soon")
	t.Setenv("CAMSIFT_LOG_LEVEL", "chatty")

	cfg := Load()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want the default 3", cfg.MaxRetries)
	}
	if cfg.ImageTimeout != 30*time.Second {
		t.Errorf("ImageTimeout = %v, want the default 30s", cfg.ImageTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want the default info", cfg.LogLevel)
	}
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		keys        []string
		want        int
	}{
		{"explicit wins", 4, []string{"a", "b"}, 4},
		{"one per key", 0, []string{"a", "b", "c"}, 3},
		{"no keys no setting", 0, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Concurrency: tt.concurrency, APIKeys: tt.keys}
			if got := cfg.WorkerCount(); got != tt.want {
				t.Errorf("WorkerCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
