// Package cache manages the on-disk cache root: report-identity
// fingerprinting, the per-user cache directory, the atomic
// temp-then-rename commit protocol, and LRU eviction by byte ceiling.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

const dirName = "lazy-milktea"

// Fingerprint derives a stable report identity from the input path's
// size and modification time, matching the "path, size, modification
// time" identity the original cache layout is keyed by.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Root returns the cache root directory, creating it if necessary.
// override, when non-empty (from config), takes precedence over the
// per-user default of <user-cache>/lazy-milktea.
func Root(fs afero.Fs, override string) (string, error) {
	if override != "" {
		if err := fs.MkdirAll(override, 0o755); err != nil {
			return "", err
		}
		return override, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	root := filepath.Join(home, ".cache", dirName)
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return root, nil
}

// Dir returns the committed cache directory for a report fingerprint.
func Dir(root, fingerprint string) string {
	return filepath.Join(root, fingerprint)
}

// Exists reports whether a cache directory has already been committed
// for fingerprint.
func Exists(fs afero.Fs, root, fingerprint string) bool {
	ok, err := afero.DirExists(fs, Dir(root, fingerprint))
	return err == nil && ok
}
