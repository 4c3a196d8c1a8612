package filelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("lockfile not created: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lockfile still present after Release")
	}
}

func TestAcquireWhileHeldFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(path); err != ErrLocked {
		t.Errorf("second Acquire = %v, want ErrLocked", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, []byte("99999\n2000-01-01T00:00:00Z"), 0600); err != nil {
		t.Fatalf("write stale lockfile: %v", err)
	}
	oldTime := time.Now().Add(-1 * time.Hour)
	if err := os.Chtimes(lockPath, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock failed: %v", err)
	}
	defer lock.Release()
}

func TestHolderPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	pid, ok := HolderPID(path)
	if !ok {
		t.Fatal("HolderPID returned ok=false for an active lock")
	}
	if pid != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", pid, os.Getpid())
	}
}

func TestHolderPIDMissingLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	if _, ok := HolderPID(path); ok {
		t.Error("HolderPID on missing lockfile returned ok=true")
	}
}
