package storage

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to a fresh ".tmp.<rand>" sibling of path,
// fsyncs it, and renames it onto path. This is the one atomicity pattern
// this package uses everywhere (file bodies, metadata blob, quarantine
// copies):
// killing the process at any point during the write leaves the vault
// openable in a state equal to either the pre- or post-operation state,
// because os.Rename is atomic on every platform this targets.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := tempSibling(path)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return "", fmt.Errorf("storage: create temp %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("storage: write temp %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("storage: fsync temp %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("storage: rename %s -> %s: %w", tmp, path, err)
	}
	return path, nil
}

func tempSibling(path string) (string, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.tmp.%x", path, suffix), nil
}

// cleanupOrphanedTempFiles removes leftover ".tmp.*" files from a
// previous crashed write. After a restart, a listing must either
// contain or omit a given file, but never surface one whose body fails
// to read back. An orphaned temp file must never be mistaken for a
// committed one.
func cleanupOrphanedTempFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if len(name) > 4 && filepath.Ext(name) != "" {
			// best-effort: any "*.tmp.*" pattern
		}
		if containsTempMarker(name) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

func containsTempMarker(name string) bool {
	const marker = ".tmp."
	for i := 0; i+len(marker) <= len(name); i++ {
		if name[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
