package cache

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/spf13/afero"
)

// NewTempDir creates a staging directory under root for an atomic
// commit. Its name can never collide with a committed fingerprint
// directory (those are lowercase hex digests of a fixed width).
func NewTempDir(fs afero.Fs, root string) (string, error) {
	dir := filepath.Join(root, fmt.Sprintf(".tmp-%016x", rand.Int63()))
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Commit atomically publishes tempDir as finalDir, replacing any
// previously-committed (stale) directory at finalDir.
func Commit(fs afero.Fs, tempDir, finalDir string) error {
	_ = fs.RemoveAll(finalDir)
	return fs.Rename(tempDir, finalDir)
}

// Discard removes an abandoned temp directory, used when an ingest is
// cancelled mid-pass.
func Discard(fs afero.Fs, tempDir string) error {
	return fs.RemoveAll(tempDir)
}

// Invalidate removes a committed cache directory, used when the
// executor detects corruption or a stale schema version.
func Invalidate(fs afero.Fs, dir string) error {
	return fs.RemoveAll(dir)
}
