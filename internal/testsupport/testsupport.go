package testsupport

import (
	"path/filepath"
	"testing"

	"parley/internal/blobstore"
	"parley/internal/config"
	"parley/internal/deadletter"
)

// NewConfig returns a validated config rooted in a per-test temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a dead-letter store for the test and closes it on
// cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *deadletter.Store {
	t.Helper()
	store, err := deadletter.Open(cfg)
	if err != nil {
		t.Fatalf("open dead-letter store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// MustOpenBlobs opens a blob store rooted under the config data directory.
func MustOpenBlobs(t *testing.T, cfg *config.Config) *blobstore.Store {
	t.Helper()
	blobs, err := blobstore.Open(filepath.Join(cfg.Paths.DataDir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	return blobs
}
