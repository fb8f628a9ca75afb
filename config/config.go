// Package config loads the deployment-tunable knobs the rest of the
// pipeline otherwise treats as constants: cache location and size,
// posting-sampling threshold, progress cadence, and message size cap.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every value an operator can override from the default
// file. Zero values fall back to the package defaults in Default().
type Config struct {
	CacheRoot           string  `yaml:"cacheRoot" json:"cacheRoot"`
	CacheCeilingBytes   int64   `yaml:"cacheCeilingBytes" json:"cacheCeilingBytes"`
	PostingsThreshold   int64   `yaml:"postingsThreshold" json:"postingsThreshold"`
	PostingsSampleRate  int64   `yaml:"postingsSampleRate" json:"postingsSampleRate"`
	ProgressIntervalMs  int64   `yaml:"progressIntervalMs" json:"progressIntervalMs"`
	ProgressBytePercent float64 `yaml:"progressBytePercent" json:"progressBytePercent"`
	MaxMessageBytes     int64   `yaml:"maxMessageBytes" json:"maxMessageBytes"`
	EfRecentWindowMs    int64   `yaml:"efRecentWindowMs" json:"efRecentWindowMs"`
}

// Default returns the built-in values every component uses when no
// config file is present or a field is left unset.
func Default() Config {
	return Config{
		CacheCeilingBytes:   2 << 30, // 2 GiB
		PostingsThreshold:   1 << 20,
		PostingsSampleRate:  8,
		ProgressIntervalMs:  250,
		ProgressBytePercent: 1.0,
		MaxMessageBytes:     64 * 1024,
		EfRecentWindowMs:    5 * 60 * 1000,
	}
}

// Load reads a YAML config file at path and overlays any set fields
// onto Default(). A missing file is not an error; it simply yields the
// defaults, since running with no config file is the common case.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, err
	}
	mergeOverlay(&cfg, overlay)
	return cfg, nil
}

func mergeOverlay(cfg *Config, overlay Config) {
	if overlay.CacheRoot != "" {
		cfg.CacheRoot = overlay.CacheRoot
	}
	if overlay.CacheCeilingBytes != 0 {
		cfg.CacheCeilingBytes = overlay.CacheCeilingBytes
	}
	if overlay.PostingsThreshold != 0 {
		cfg.PostingsThreshold = overlay.PostingsThreshold
	}
	if overlay.PostingsSampleRate != 0 {
		cfg.PostingsSampleRate = overlay.PostingsSampleRate
	}
	if overlay.ProgressIntervalMs != 0 {
		cfg.ProgressIntervalMs = overlay.ProgressIntervalMs
	}
	if overlay.ProgressBytePercent != 0 {
		cfg.ProgressBytePercent = overlay.ProgressBytePercent
	}
	if overlay.MaxMessageBytes != 0 {
		cfg.MaxMessageBytes = overlay.MaxMessageBytes
	}
	if overlay.EfRecentWindowMs != 0 {
		cfg.EfRecentWindowMs = overlay.EfRecentWindowMs
	}
}
