// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"podsift/internal/catalog"
	"podsift/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.AudioDir = filepath.Join(base, "audio")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SubscriptionsPath = filepath.Join(base, "subscriptions.yaml")
	cfg.Paths.RunLockPath = filepath.Join(base, "run.lock")
	cfg.Scoring.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithChunkSeconds overrides the transcription chunk duration.
func WithChunkSeconds(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcription.ChunkSeconds = seconds
	}
}

// WithThreshold overrides the default scoring threshold.
func WithThreshold(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scoring.DefaultThreshold = threshold
	}
}

// MustOpenStore opens a catalog store for the test config and closes it when
// the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open catalog store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
