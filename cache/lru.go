package cache

import (
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// EvictToFit enforces ceilingBytes over root by evicting whole report
// directories, least-recently-accessed first. It seeds a golang-lru
// cache with every existing cache directory (keyed by name, valued by
// byte size) ordered oldest-access-first, then calls RemoveOldest until
// the measured total drops to the ceiling; the library's eviction
// callback is what actually deletes each directory from disk.
func EvictToFit(fs afero.Fs, root string, ceilingBytes int64) error {
	if ceilingBytes <= 0 {
		return nil
	}
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return err
	}

	type dirInfo struct {
		name     string
		size     int64
		accessed int64
	}
	var dirs []dirInfo
	var total int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		size, err := dirSize(fs, filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		dirs = append(dirs, dirInfo{name: e.Name(), size: size, accessed: e.ModTime().UnixNano()})
		total += size
	}
	if total <= ceilingBytes {
		return nil
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].accessed < dirs[j].accessed })

	cache, err := lru.NewWithEvict(len(dirs)+1, func(name string, size int64) {
		_ = fs.RemoveAll(filepath.Join(root, name))
		total -= size
	})
	if err != nil {
		return err
	}
	for _, d := range dirs {
		cache.Add(d.name, d.size)
	}
	for total > ceilingBytes && cache.Len() > 0 {
		cache.RemoveOldest()
	}
	return nil
}

func dirSize(fs afero.Fs, dir string) (int64, error) {
	var size int64
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
