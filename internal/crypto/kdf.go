package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"crypto/sha256"
)

// KDF algorithm tags, stored in the versioned config record.
const (
	KDFArgon2id uint8 = 1
	KDFPBKDF2   uint8 = 2
)

const (
	// SaltLength is the minimum and default salt length in bytes: 16B is
	// the usual floor, 32B is chosen here for headroom.
	SaltLength = 32

	// MinPBKDF2Iterations is the floor for the PBKDF2 fallback path.
	MinPBKDF2Iterations = 600_000

	maxMemoryKB     = 128 * 1024 // 128 MB cap
	maxParallelism  = 4
	minMemoryKB     = 19 * 1024 // OWASP floor for argon2id
	defaultTimeCost = 2
)

var (
	// ErrKdfUnavailable is returned by Derive when the requested
	// algorithm tag is unknown to this build.
	ErrKdfUnavailable = errors.New("crypto: kdf algorithm unavailable")
	ErrInvalidParams  = errors.New("crypto: invalid kdf parameters")
)

// Params is the versioned, algorithm-tagged set of KDF cost parameters
// persisted in the config record. A single instance (one salt, one cost
// profile) is reused for all three password slots so the three KEK
// derivations are indistinguishable in timing.
type Params struct {
	Algorithm   uint8
	Salt        []byte
	TimeCost    uint32 // argon2: passes. pbkdf2: unused.
	MemoryKB    uint32 // argon2: memory in KiB. pbkdf2: unused.
	Parallelism uint8  // argon2: lanes. pbkdf2: unused.
	Iterations  uint32 // pbkdf2: iteration count. argon2: unused.
}

// Derive produces a 32-byte KEK from password bytes and params. Password
// is treated as a mutable byte sequence the caller owns; Derive does not
// take ownership or clear it. Callers are expected to wrap it in a
// SecretBuffer or clear it themselves once done.
//
// For fixed (password, params), Derive is deterministic: verifier-based
// classification depends on recomputing the identical derivation on
// every attempt.
func Derive(password []byte, params Params) (*SecretBuffer, error) {
	if len(params.Salt) < 16 {
		return nil, fmt.Errorf("%w: salt too short", ErrInvalidParams)
	}
	canon := canonicalize(password)
	defer ClearBytes(canon)

	switch params.Algorithm {
	case KDFArgon2id:
		if params.MemoryKB == 0 || params.TimeCost == 0 || params.Parallelism == 0 {
			return nil, fmt.Errorf("%w: missing argon2 cost parameters", ErrInvalidParams)
		}
		key := argon2.IDKey(canon, params.Salt, params.TimeCost, params.MemoryKB, params.Parallelism, KeyLength)
		buf := NewSecretBuffer(key)
		ClearBytes(key)
		return buf, nil
	case KDFPBKDF2:
		iterations := params.Iterations
		if iterations < MinPBKDF2Iterations {
			return nil, fmt.Errorf("%w: iterations below floor", ErrInvalidParams)
		}
		key := pbkdf2.Key(canon, params.Salt, int(iterations), KeyLength, sha256.New)
		buf := NewSecretBuffer(key)
		ClearBytes(key)
		return buf, nil
	default:
		return nil, ErrKdfUnavailable
	}
}

// canonicalize encodes a password into its fixed canonical form (UTF-8,
// unchanged byte sequence; Go strings and []byte are already UTF-8 by
// convention) in a freshly allocated buffer the caller must clear. This
// exists as an explicit step so future canonicalization rules (e.g.
// Unicode NFC normalization) have one place to live without touching
// every call site.
func canonicalize(password []byte) []byte {
	out := make([]byte, len(password))
	copy(out, password)
	return out
}

// Benchmark probes this machine and picks Argon2id cost parameters
// targeting targetMS per derivation, capped at memCapMB of memory and
// maxParallelism lanes. If memCapMB is below Argon2id's minimum memory
// cost (minMemoryKB), it returns the PBKDF2 fallback profile at the
// floor iteration count instead.
func Benchmark(targetMS uint32, memCapMB uint32) Params {
	if targetMS == 0 {
		targetMS = 500
	}
	if memCapMB == 0 || memCapMB > 128 {
		memCapMB = 128
	}
	salt, err := SecureRandom(SaltLength)
	if err != nil {
		// Bench only needs a throwaway salt; fall back to a fixed
		// size zero buffer rather than fail setup outright.
		salt = make([]byte, SaltLength)
	}

	parallelism := uint8(runtime.NumCPU())
	if parallelism > maxParallelism {
		parallelism = maxParallelism
	}
	if parallelism == 0 {
		parallelism = 1
	}

	memoryKB := memCapMB * 1024
	if memoryKB > maxMemoryKB {
		memoryKB = maxMemoryKB
	}
	if memoryKB < minMemoryKB {
		return FallbackParams(salt)
	}

	timeCost := uint32(defaultTimeCost)
	target := time.Duration(targetMS) * time.Millisecond

	probe := []byte("ghostvault-benchmark-probe")
	for iter := 0; iter < 8; iter++ {
		start := time.Now()
		argon2.IDKey(probe, salt, timeCost, memoryKB, parallelism, KeyLength)
		elapsed := time.Since(start)

		if elapsed >= target*8/10 && elapsed <= target*12/10 {
			break
		}
		if elapsed < target {
			timeCost++
			continue
		}
		if timeCost > 1 {
			timeCost--
		}
		break
	}

	return Params{
		Algorithm:   KDFArgon2id,
		Salt:        salt,
		TimeCost:    timeCost,
		MemoryKB:    memoryKB,
		Parallelism: parallelism,
	}
}

// FallbackParams returns a PBKDF2 profile at the mandated iteration floor,
// for use when Argon2id is unavailable in a given build (ErrKdfUnavailable
// from a caller's perspective: this package always has Argon2id compiled
// in, but config records written by a PBKDF2-only build must still load).
func FallbackParams(salt []byte) Params {
	return Params{
		Algorithm:  KDFPBKDF2,
		Salt:       salt,
		Iterations: MinPBKDF2Iterations,
	}
}

// serialized params wire format (little-endian):
//
//	version(1) | algorithm(1) | salt_len(2) | salt(..) |
//	time_cost(4) | memory_kb(4) | parallelism(1) | iterations(4)
const paramsVersion = 1

// SerializeParams encodes Params into the versioned, forwards-compatible
// binary form stored inside the config record.
func SerializeParams(p Params) []byte {
	buf := make([]byte, 0, 2+2+len(p.Salt)+4+4+1+4)
	buf = append(buf, paramsVersion, p.Algorithm)
	saltLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(saltLen, uint16(len(p.Salt)))
	buf = append(buf, saltLen...)
	buf = append(buf, p.Salt...)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], p.TimeCost)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], p.MemoryKB)
	buf = append(buf, tmp4[:]...)
	buf = append(buf, p.Parallelism)
	binary.LittleEndian.PutUint32(tmp4[:], p.Iterations)
	buf = append(buf, tmp4[:]...)
	return buf
}

// DeserializeParams decodes the form written by SerializeParams. Unknown
// future versions with a longer trailer are accepted as long as the
// fields this build understands are present, so old builds can still
// read records written by a newer one.
func DeserializeParams(data []byte) (Params, error) {
	if len(data) < 2+2 {
		return Params{}, fmt.Errorf("%w: truncated header", ErrInvalidParams)
	}
	version := data[0]
	if version == 0 {
		return Params{}, fmt.Errorf("%w: unknown version 0", ErrInvalidParams)
	}
	algorithm := data[1]
	saltLen := int(binary.LittleEndian.Uint16(data[2:4]))
	offset := 4
	if len(data) < offset+saltLen+4+4+1+4 {
		return Params{}, fmt.Errorf("%w: truncated body", ErrInvalidParams)
	}
	salt := make([]byte, saltLen)
	copy(salt, data[offset:offset+saltLen])
	offset += saltLen

	timeCost := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4
	memoryKB := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4
	parallelism := data[offset]
	offset++
	iterations := binary.LittleEndian.Uint32(data[offset : offset+4])

	return Params{
		Algorithm:   algorithm,
		Salt:        salt,
		TimeCost:    timeCost,
		MemoryKB:    memoryKB,
		Parallelism: parallelism,
		Iterations:  iterations,
	}, nil
}
