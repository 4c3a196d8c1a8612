// Package limiter implements the attempt-limiter / lockout state
// machine: a persistent failed-attempt counter stored outside the vault
// root, so that wiping the vault (panic) does not reset it.
package limiter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ghostvault/ghostvault/internal/filelock"
)

const (
	// DefaultMaxAttempts is the default failed-attempt ceiling before
	// lockout engages.
	DefaultMaxAttempts = 5
	// DefaultLockoutSeconds is the default lockout window.
	DefaultLockoutSeconds = 300

	stateMagic   = "GVAL"
	stateVersion = 1
)

// ErrLocked is returned by Check while the lockout window is active.
type ErrLocked struct {
	RemainingSeconds int64
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("limiter: locked, %ds remaining", e.RemainingSeconds)
}

// State is the persisted counter/lockout pair.
type State struct {
	FailedCount   uint32
	LockoutUntil  int64 // unix millis; 0 means not locked out
}

// Limiter guards a path outside the vault root (the caller is
// responsible for choosing a path that survives panic, e.g.
// ~/.ghostvault/attempts).
type Limiter struct {
	path              string
	maxAttempts       uint32
	lockoutSeconds    int64
}

func New(path string, maxAttempts uint32, lockoutSeconds int64) *Limiter {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockoutSeconds == 0 {
		lockoutSeconds = DefaultLockoutSeconds
	}
	return &Limiter{path: path, maxAttempts: maxAttempts, lockoutSeconds: lockoutSeconds}
}

// Check gates a triage call: if currently locked out and the window
// has not elapsed, the attempt is
// rejected without running classify() at all (the caller must not call
// triage.Classify in this case; rejecting here, before derivation, is
// intentional: the lockout path is allowed to be fast since it carries no
// password-dependent information to leak). If the window has elapsed, the
// counter resets to 0 and the caller proceeds to classify.
func (l *Limiter) Check(now time.Time) error {
	st, err := l.load()
	if err != nil {
		return err
	}
	if st.LockoutUntil == 0 {
		return nil
	}
	remaining := st.LockoutUntil - now.UnixMilli()
	if remaining <= 0 {
		st.LockoutUntil = 0
		st.FailedCount = 0
		return l.save(st)
	}
	return &ErrLocked{RemainingSeconds: (remaining + 999) / 1000}
}

// RecordFailure increments the counter and, on reaching maxAttempts,
// enters Locked(now+T).
func (l *Limiter) RecordFailure(now time.Time) error {
	st, err := l.load()
	if err != nil {
		return err
	}
	st.FailedCount++
	if st.FailedCount >= l.maxAttempts {
		st.LockoutUntil = now.Add(time.Duration(l.lockoutSeconds) * time.Second).UnixMilli()
	}
	return l.save(st)
}

// RecordSuccess resets the counter on any valid Master/Decoy/Panic
// classification.
func (l *Limiter) RecordSuccess() error {
	return l.save(State{})
}

// Snapshot returns the current persisted state for diagnostics,
// without mutating it.
func (l *Limiter) Snapshot() (State, error) {
	return l.load()
}

func (l *Limiter) load() (State, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("limiter: read: %w", err)
	}
	return decodeState(data)
}

func (l *Limiter) save(st State) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return err
	}
	lock, err := filelock.Acquire(l.path)
	if err != nil {
		return fmt.Errorf("limiter: acquire lock: %w", err)
	}
	defer lock.Release()

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(encodeState(st)); err != nil {
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
	return os.Rename(tmp, l.path)
}

func encodeState(st State) []byte {
	buf := make([]byte, 0, 4+1+4+8)
	buf = append(buf, stateMagic...)
	buf = append(buf, stateVersion)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], st.FailedCount)
	buf = append(buf, u32[:]...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(st.LockoutUntil))
	buf = append(buf, u64[:]...)
	return buf
}

func decodeState(data []byte) (State, error) {
	if len(data) < 4+1+4+8 || string(data[:4]) != stateMagic {
		return State{}, errors.New("limiter: corrupted attempts file")
	}
	st := State{}
	st.FailedCount = binary.LittleEndian.Uint32(data[5:9])
	st.LockoutUntil = int64(binary.LittleEndian.Uint64(data[9:17]))
	return st, nil
}
