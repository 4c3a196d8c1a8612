package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeyLength is the AES-256 key length in bytes.
	KeyLength = 32
	// NonceLength is the GCM nonce length in bytes (96 bits).
	NonceLength = 12
	// TagLength is the GCM authentication tag length in bytes (128 bits).
	TagLength = 16
)

var (
	ErrInvalidKeyLength  = errors.New("crypto: invalid key length")
	ErrInvalidCiphertext = errors.New("crypto: ciphertext too short")
	// ErrAuthFailed is returned for any AEAD tag mismatch. Callers MUST
	// treat this as fatal for the operation in progress: never expose
	// partial plaintext, never retry with a "lenient" mode.
	ErrAuthFailed = errors.New("crypto: authentication failed")
)

// Encrypt seals plaintext under key with AES-256-GCM, binding aad as
// associated data. Output framing is nonce || ciphertext || tag. The
// nonce is drawn fresh from crypto/rand on every call. Reusing a nonce
// under the same key breaks GCM's confidentiality guarantee entirely.
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	out := make([]byte, 0, NonceLength+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. Any authentication failure
// (wrong key, flipped ciphertext bit, flipped AAD) returns ErrAuthFailed
// and nothing else; there is no partial-plaintext path.
func Decrypt(key, blob, aad []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(blob) < NonceLength+TagLength {
		return nil, ErrInvalidCiphertext
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:NonceLength]
	ciphertext := blob[NonceLength:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return gcm, nil
}

// SecureRandom returns n cryptographically random bytes.
func SecureRandom(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("crypto: invalid length")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: read random: %w", err)
	}
	return b, nil
}

// Associated-data contexts. Binding ciphertexts to a distinct context per
// use prevents cross-context substitution: a metadata blob can never be
// replayed as a file body and vice versa, because the AAD would not
// match.
const (
	AADMeta       = "meta"
	AADVMKWrap    = "vmk"
	AADDVMKWrap   = "dvmk"
	fileAADPrefix = "file:"
	dekAADPrefix  = "dek:"
)

// FileAAD returns the associated data for a file body, bound to its
// file_id.
func FileAAD(fileID [16]byte) []byte {
	return append([]byte(fileAADPrefix), fileID[:]...)
}

// DEKAAD returns the associated data for a wrapped per-file DEK, bound to
// its file_id.
func DEKAAD(fileID [16]byte) []byte {
	return append([]byte(dekAADPrefix), fileID[:]...)
}
