// Package crypto implements GhostVault's key-hierarchy primitives: the
// zeroizing secret buffer, the KDF engine, the AEAD codec, and the
// password/verifier/key-wrap hierarchy built on top of them.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"sync"
)

// ErrBufferReleased is returned by any operation on a SecretBuffer after
// Zeroize has run.
var ErrBufferReleased = errors.New("crypto: secret buffer already released")

// SecretBuffer owns sensitive bytes (password material, KEKs, VMK/DVMK,
// DEKs) and guarantees they are wiped before the memory is released,
// regardless of exit path. Callers never hold a raw []byte for these
// values longer than a single call; they borrow a slice via AsSlice and
// must not retain it past the call that returned it.
//
// Zeroization is a random pass followed by a zero pass (defense against a
// partial read landing on a predictable all-zero pattern), with a
// constant-time compare afterward as a compiler barrier so the writes
// cannot be optimized away.
type SecretBuffer struct {
	mu       sync.Mutex
	data     []byte
	released bool
}

// NewSecretBuffer allocates a buffer of the given length and copies src
// into it. The caller remains responsible for zeroizing src itself if it
// owns it independently (SecretBuffer takes a copy, not ownership, of the
// input slice).
func NewSecretBuffer(src []byte) *SecretBuffer {
	b := &SecretBuffer{data: make([]byte, len(src))}
	copy(b.data, src)
	return b
}

// NewEmptySecretBuffer allocates a zeroed buffer of length n for callers
// that will fill it in place (e.g. a KDF writing its output directly).
func NewEmptySecretBuffer(n int) *SecretBuffer {
	return &SecretBuffer{data: make([]byte, n)}
}

// Len returns the buffer length, or 0 if released.
func (b *SecretBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return 0
	}
	return len(b.data)
}

// AsSlice returns the underlying slice for the duration of fn, under the
// buffer's lock. The slice must not be retained after fn returns.
func (b *SecretBuffer) AsSlice(fn func([]byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrBufferReleased
	}
	return fn(b.data)
}

// Clone returns a new SecretBuffer holding an independent copy of the
// contents. Used when a reader needs to borrow the active VMK/DVMK for the
// duration of one orchestrator operation (see internal/vault).
func (b *SecretBuffer) Clone() (*SecretBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrBufferReleased
	}
	return NewSecretBuffer(b.data), nil
}

// ConstantTimeEq compares this buffer's contents against other in
// constant time. Returns false (never an error) if either buffer has been
// released, so a released buffer never compares equal.
func (b *SecretBuffer) ConstantTimeEq(other *SecretBuffer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return false
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	if other.released {
		return false
	}
	if len(b.data) != len(other.data) {
		return false
	}
	return subtle.ConstantTimeCompare(b.data, other.data) == 1
}

// Zeroize overwrites the buffer with random bytes, then zeros, and marks
// it released. Safe to call more than once and safe to call from a defer
// on every exit path (normal return, error, or recovered panic).
func (b *SecretBuffer) Zeroize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	wipe(b.data)
	b.data = nil
	b.released = true
}

// wipe performs a random-then-zero double pass, then reads the buffer
// back through a constant-time compare so the compiler can't prove the
// writes are dead and optimize them away.
func wipe(data []byte) {
	if len(data) == 0 {
		return
	}
	_, _ = rand.Read(data)
	for i := range data {
		data[i] = 0
	}
	dummy := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, dummy)
}

// ClearBytes zeroizes a plain byte slice in place. Exposed for call sites
// that briefly hold password bytes outside of a SecretBuffer (e.g. a CLI
// prompt buffer) before handing them to the KDF engine.
func ClearBytes(data []byte) {
	wipe(data)
}
