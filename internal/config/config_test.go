package config

import (
	"testing"
	"time"
)

func TestEffectiveWSURL(t *testing.T) {
	tests := []struct {
		name   string
		wsBase string
		origin string
		want   string
	}{
		{
			name:   "no public origin",
			wsBase: "ws://localhost:8000",
			origin: "",
			want:   "ws://localhost:8000",
		},
		{
			name:   "dev host behind https origin",
			wsBase: "ws://localhost:8000/",
			origin: "https://aicca.app",
			want:   "wss://aicca.app",
		},
		{
			name:   "loopback ip behind http origin with port",
			wsBase: "ws://127.0.0.1:8000",
			origin: "http://10.0.0.5:3000",
			want:   "ws://10.0.0.5:3000",
		},
		{
			name:   "origin is also local",
			wsBase: "ws://localhost:8000",
			origin: "http://localhost:3000",
			want:   "ws://localhost:8000",
		},
		{
			name:   "configured url is already public",
			wsBase: "wss://api.aicca.app",
			origin: "https://aicca.app",
			want:   "wss://api.aicca.app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveWSURL(tt.wsBase, tt.origin); got != tt.want {
				t.Errorf("EffectiveWSURL(%q, %q) = %q, want %q", tt.wsBase, tt.origin, got, tt.want)
			}
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("AICCA_WS_URL", "ws://127.0.0.1:9999")
	t.Setenv("UPLOAD_CHUNK_SIZE", "2048")
	t.Setenv("UPLOAD_TIMEOUT", "5s")
	t.Setenv("UPLOAD_CHUNK_DELAY", "not-a-duration")

	cfg := Load()

	if cfg.Client.WSBaseURL != "ws://127.0.0.1:9999" {
		t.Errorf("WSBaseURL = %q", cfg.Client.WSBaseURL)
	}
	if cfg.Upload.ChunkSize != 2048 {
		t.Errorf("ChunkSize = %d, want 2048", cfg.Upload.ChunkSize)
	}
	if cfg.Upload.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", cfg.Upload.Timeout)
	}
	if cfg.Upload.ChunkDelay != 100*time.Millisecond {
		t.Errorf("ChunkDelay = %s, want fallback 100ms", cfg.Upload.ChunkDelay)
	}
}
