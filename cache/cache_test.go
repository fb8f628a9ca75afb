package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestCommitIsAtomicRenameAndReplacesStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/cache"
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	final := Dir(root, "abc123")
	if err := fs.MkdirAll(final, 0o755); err != nil {
		t.Fatal(err)
	}
	afero.WriteFile(fs, final+"/stale.txt", []byte("old"), 0o644)

	tmp, err := NewTempDir(fs, root)
	if err != nil {
		t.Fatalf("NewTempDir: %v", err)
	}
	afero.WriteFile(fs, tmp+"/summary.json", []byte("{}"), 0o644)

	if err := Commit(fs, tmp, final); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, _ := afero.Exists(fs, final+"/stale.txt"); ok {
		t.Errorf("stale file survived commit")
	}
	if ok, _ := afero.Exists(fs, final+"/summary.json"); !ok {
		t.Errorf("committed file missing after commit")
	}
	if ok, _ := afero.DirExists(fs, tmp); ok {
		t.Errorf("temp dir should no longer exist after rename")
	}
}

func TestDiscardRemovesTempDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/cache"
	fs.MkdirAll(root, 0o755)
	tmp, _ := NewTempDir(fs, root)
	if err := Discard(fs, tmp); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if ok, _ := afero.DirExists(fs, tmp); ok {
		t.Errorf("temp dir should be gone")
	}
}

func TestEvictToFitRemovesOldest(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/cache"
	fs.MkdirAll(root, 0o755)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		dir := Dir(root, name)
		fs.MkdirAll(dir, 0o755)
		afero.WriteFile(fs, dir+"/rows", make([]byte, 1024), 0o644)
		when := base.Add(time.Duration(i) * time.Hour)
		fs.Chtimes(dir, when, when)
	}

	if err := EvictToFit(fs, root, 2000); err != nil {
		t.Fatalf("EvictToFit: %v", err)
	}

	remaining := 0
	entries, _ := afero.ReadDir(fs, root)
	for _, e := range entries {
		if e.IsDir() {
			remaining++
		}
	}
	if remaining == 0 || remaining == 3 {
		t.Errorf("expected partial eviction, got %d directories remaining", remaining)
	}
	if ok, _ := afero.DirExists(fs, Dir(root, "old")); ok {
		t.Errorf("oldest directory survived eviction")
	}
	if ok, _ := afero.DirExists(fs, Dir(root, "new")); !ok {
		t.Errorf("newest directory was evicted")
	}
}
