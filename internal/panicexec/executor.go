// Package panicexec implements the panic executor: the
// irreversible five-phase sequence run when a password classifies as
// Panic. Cryptographic erasure of the config record and salt is phase
// one and is the primary guarantee; everything after it is documented
// best-effort.
package panicexec

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghostvault/ghostvault/internal/filelock"
)

// Tombstone is an opt-in, non-secret marker dropped at the very end of a
// live run, recording only that a panic executed and when, never which
// password, never any file name. Left nil, no tombstone is written: the
// default is to exit without leaving any trace behind.
type Tombstone func(path string)

// Executor runs the five phases against a real vault root, its decoy
// counterpart, and the attempts file outside both.
type Executor struct {
	Root         string
	DecoyRoot    string
	AttemptsPath string
	Tombstone    Tombstone
}

// Execute runs all five phases in order. In dry_run mode it returns nil
// at once: nothing on disk is touched, and no plan or record of the
// actions a live run would take is produced.
//
// Execute is re-entrant safe: phase 1 (cryptographic erasure) runs
// first and is itself idempotent: destroying an already-destroyed
// config is a no-op, not an error, so a panic triggered twice (e.g. a
// crash mid-run followed by a retry) cannot leave the config recoverable
// partway through.
func (e *Executor) Execute(dryRun bool) error {
	if dryRun {
		return nil
	}

	// Phase 1: cryptographic erasure of config + salt. This must run
	// first, unconditionally, and must not fail silently. Once this
	// phase completes, the key hierarchy is unrecoverable regardless of
	// what happens to phases 2-5 below (process kill, disk full,
	// permission error).
	if err := e.phase1CryptographicErasure(); err != nil {
		return fmt.Errorf("panicexec: phase 1 (cryptographic erasure) failed: %w", err)
	}

	// Phase 2: delete metadata and audit blobs.
	e.phase2DeleteMetadata()

	// Phase 3: best-effort physical overwrite of file bodies, real and
	// decoy. Unreliable on SSD wear-leveling, journaling filesystems, and
	// copy-on-write filesystems. Phase 1 is the guarantee, this is
	// defense in depth.
	e.phase3OverwriteFiles()

	// Phase 4: remove the directory structure bottom-up.
	e.phase4RemoveDirectories()

	// Phase 5: zeroize live secrets; Execute then returns. The caller (Open)
	// owns zeroizing its own SecretBuffers on the path that called us;
	// this phase covers directory-local secret scratch state this
	// executor allocated for itself (none today, reserved for future
	// ephemeral buffers introduced into this package).
	e.phase5Zeroize()

	if e.Tombstone != nil {
		e.Tombstone(filepath.Join(filepath.Dir(e.AttemptsPath), "panic-tombstone"))
	}
	return nil
}

func (e *Executor) phase1CryptographicErasure() error {
	configPath := filepath.Join(e.Root, "config")
	backupPath := filepath.Join(e.Root, "config.bak")
	saltPath := filepath.Join(e.Root, ".salt")

	lock, lockErr := filelock.Acquire(configPath)
	if lockErr == nil {
		defer lock.Release()
	}

	for _, p := range []string{configPath, backupPath, saltPath} {
		if err := destroyFile(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) phase2DeleteMetadata() {
	for _, root := range []string{e.Root, e.DecoyRoot} {
		_ = destroyFile(filepath.Join(root, "metadata"))
		_ = destroyFile(filepath.Join(root, "metadata.bak"))
		_ = os.RemoveAll(filepath.Join(root, "quarantine"))
	}
}

func (e *Executor) phase3OverwriteFiles() {
	for _, root := range []string{e.Root, e.DecoyRoot} {
		dir := filepath.Join(root, "files")
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			_ = destroyFile(filepath.Join(dir, ent.Name()))
		}
	}
}

func (e *Executor) phase4RemoveDirectories() {
	for _, root := range []string{
		filepath.Join(e.Root, "files"),
		filepath.Join(e.DecoyRoot, "files"),
		e.DecoyRoot,
		e.Root,
	} {
		_ = os.RemoveAll(root)
	}
}

func (e *Executor) phase5Zeroize() {
	// No package-local secret state outstanding at this point; kept as
	// the designated home for any future in-process secret this package
	// comes to hold.
}

// destroyFile overwrites a file's contents with random bytes, fsyncs,
// then unlinks it. Missing files are not an error: erasing something
// that was never written is trivially complete.
func destroyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	buf := make([]byte, info.Size())
	if _, err := rand.Read(buf); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
