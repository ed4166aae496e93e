package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("RANK_WORKERS", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != defaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, defaultHTTPAddr)
	}
	if cfg.JWTSecret != devJWTSecret {
		t.Errorf("JWTSecret = %q, want dev secret in debug mode", cfg.JWTSecret)
	}
	if cfg.JWTTTL != defaultJWTTTL {
		t.Errorf("JWTTTL = %s, want %s", cfg.JWTTTL, defaultJWTTTL)
	}
	if cfg.RankWorkers != defaultRankWorkers {
		t.Errorf("RankWorkers = %d, want %d", cfg.RankWorkers, defaultRankWorkers)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != defaultCORSOrigins {
		t.Errorf("CORSOrigins = %v, want [%s]", cfg.CORSOrigins, defaultCORSOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("RANK_WORKERS", "4")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTTTL != 2*time.Hour {
		t.Errorf("JWTTTL = %s, want 2h", cfg.JWTTTL)
	}
	if cfg.RankWorkers != 4 {
		t.Errorf("RankWorkers = %d, want 4", cfg.RankWorkers)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"release without secret", map[string]string{"GIN_MODE": "release", "JWT_SECRET": ""}},
		{"bad ttl", map[string]string{"GIN_MODE": "debug", "JWT_TTL": "forever"}},
		{"bad gin mode", map[string]string{"GIN_MODE": "turbo"}},
		{"zero workers", map[string]string{"GIN_MODE": "debug", "RANK_WORKERS": "0"}},
		{"negative ws cap", map[string]string{"GIN_MODE": "debug", "WS_MAX_CONNECTIONS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}
}
