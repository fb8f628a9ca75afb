package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "cacheRoot: /tmp/custom-cache\ncacheCeilingBytes: 104857600\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheRoot != "/tmp/custom-cache" {
		t.Errorf("CacheRoot = %q", cfg.CacheRoot)
	}
	if cfg.CacheCeilingBytes != 104857600 {
		t.Errorf("CacheCeilingBytes = %d", cfg.CacheCeilingBytes)
	}
	if cfg.PostingsThreshold != Default().PostingsThreshold {
		t.Errorf("PostingsThreshold should keep default, got %d", cfg.PostingsThreshold)
	}
}

func TestLoadOverlaysTuningFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "postingsThreshold: 500\npostingsSampleRate: 16\nprogressIntervalMs: 1000\n" +
		"progressBytePercent: 5\nmaxMessageBytes: 1024\nefRecentWindowMs: 60000\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		CacheCeilingBytes:   Default().CacheCeilingBytes,
		PostingsThreshold:   500,
		PostingsSampleRate:  16,
		ProgressIntervalMs:  1000,
		ProgressBytePercent: 5,
		MaxMessageBytes:     1024,
		EfRecentWindowMs:    60000,
	}
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}
