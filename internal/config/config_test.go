package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.API.PageSize != 1000 {
		t.Errorf("expected page size 1000, got %d", cfg.API.PageSize)
	}
	if cfg.API.MaxPages != 10 {
		t.Errorf("expected max pages 10, got %d", cfg.API.MaxPages)
	}
	if cfg.Defaults.Status != "open" {
		t.Errorf("expected default status open, got %q", cfg.Defaults.Status)
	}
	if cfg.Publish.UpdateMethod != "replace" {
		t.Errorf("expected update method replace, got %q", cfg.Publish.UpdateMethod)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
api:
  page_size: 50
defaults:
  days_back: 7
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.API.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.API.PageSize)
	}
	if cfg.Defaults.DaysBack != 7 {
		t.Errorf("expected days back 7, got %d", cfg.Defaults.DaysBack)
	}
	// Defaults should still be set for unspecified fields
	if cfg.API.BaseURL == "" {
		t.Error("expected default base URL")
	}
	if cfg.Defaults.Status != "open" {
		t.Errorf("expected default status open, got %q", cfg.Defaults.Status)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.API.PageSize != 1000 {
		t.Errorf("expected page size 1000, got %d", cfg.API.PageSize)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestBoundingBoxContains(t *testing.T) {
	b := BoundingBox{MinX: -90.4, MaxX: -90.1, MinY: 38.5, MaxY: 38.8}
	if !b.Contains(-90.2, 38.6) {
		t.Error("expected point inside bounds")
	}
	if b.Contains(-91.0, 38.6) {
		t.Error("expected point west of bounds to be outside")
	}
	if b.Contains(-90.2, 39.5) {
		t.Error("expected point north of bounds to be outside")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{API: API{TimeoutSeconds: 30, RateLimitDelayMS: 1000}}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.RequestTimeout())
	}
	if cfg.RateLimitDelay() != time.Second {
		t.Errorf("unexpected rate delay: %v", cfg.RateLimitDelay())
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("STL311_TEST_KEY", "abc123")
	cfg := &Config{API: API{APIKeyEnv: "STL311_TEST_KEY"}}
	if cfg.APIKey() != "abc123" {
		t.Errorf("expected key from env, got %q", cfg.APIKey())
	}
}
