// Package triage implements password classification with timing parity:
// given a password, decide whether it is the master, panic, or decoy
// password (or none of those), in a way that a local observer with
// millisecond-resolution timing cannot distinguish from the outside.
package triage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
)

// Result is the classification outcome.
type Result int

const (
	Invalid Result = iota
	Master
	Panic
	Decoy
)

func (r Result) String() string {
	switch r {
	case Master:
		return "master"
	case Panic:
		return "panic"
	case Decoy:
		return "decoy"
	default:
		return "invalid"
	}
}

// Verifiers bundles the three stored verifiers a Classifier checks
// against. A zero Verifiers (no configured vault) still drives a full
// derivation and comparison pass below, so classify() on an unconfigured
// system takes the same shape as on a configured one.
type Verifiers struct {
	Master crypto.Verifier
	Panic  crypto.Verifier
	Decoy  crypto.Verifier
}

// Config controls the timing-parity floor and jitter, and the KDF
// parameters every classification derives under.
type Config struct {
	Params    crypto.Params
	Verifiers Verifiers
	// FloorDelay is the minimum wall-clock duration classify() takes
	// before returning, regardless of outcome.
	FloorDelay time.Duration
	// JitterDelay is the maximum additional uniform-random delay added
	// on top of FloorDelay.
	JitterDelay time.Duration
}

// DefaultConfig returns floor/jitter at GhostVault's documented default
// values. Params and Verifiers are left zero-valued; callers must set them.
func DefaultConfig() Config {
	return Config{
		FloorDelay:  900 * time.Millisecond,
		JitterDelay: 300 * time.Millisecond,
	}
}

// Classify derives a KEK from password under cfg.Params, computes its
// verifier, and compares it against all three stored verifiers in
// constant time before selecting a result with a constant-time selector.
// It always:
//  1. performs the full KDF derivation, even against a zero-value
//     Verifiers (unconfigured vault); sleep-padding the derivation gap
//     is the caller's job via cfg.Params still being a real cost profile;
//  2. executes all three comparisons, never short-circuiting;
//  3. waits out the floor + jitter delay before returning.
//
// On any derivation error, Classify still waits out the timing floor
// before returning Invalid, so a KDF failure cannot be distinguished from
// a wrong password by wall-clock alone.
//
// On Master or Decoy, the returned KEK is the same one Classify already
// paid the KDF cost for; callers unwrap the matching wrapped key from it
// directly instead of deriving again, so the floor above covers the
// entire Open path and a valid password does not take measurably longer
// than an invalid one. The caller owns the returned KEK and must
// Zeroize it once done; it is nil whenever Result is Invalid or Panic.
func Classify(password []byte, cfg Config) (Result, *crypto.SecretBuffer) {
	start := time.Now()
	result, kek := classifyOnce(password, cfg)
	waitOutFloor(start, cfg)
	return result, kek
}

func classifyOnce(password []byte, cfg Config) (Result, *crypto.SecretBuffer) {
	kek, err := crypto.Derive(password, cfg.Params)
	if err != nil {
		return Invalid, nil
	}

	v, err := crypto.ComputeVerifier(kek)
	if err != nil {
		kek.Zeroize()
		return Invalid, nil
	}

	// Compute all three comparisons unconditionally. Never short
	// circuit, so the number of comparisons performed never varies
	// with which (if any) password was supplied.
	matchMaster := v.ConstantTimeEqual(cfg.Verifiers.Master)
	matchPanic := v.ConstantTimeEqual(cfg.Verifiers.Panic)
	matchDecoy := v.ConstantTimeEqual(cfg.Verifiers.Decoy)

	result := selectResult(matchMaster, matchPanic, matchDecoy)
	if result == Master || result == Decoy {
		return result, kek
	}
	kek.Zeroize()
	return result, nil
}

// selectResult applies the fixed Master > Panic > Decoy > Invalid
// priority with crypto/subtle.ConstantTimeSelect rather than a switch
// over the comparison results. Verifier collisions are
// cryptographically impossible (SHA-256 preimages), so this ordering
// only exists to make the outcome deterministic to define.
func selectResult(matchMaster, matchPanic, matchDecoy bool) Result {
	r := int(Invalid)
	r = subtle.ConstantTimeSelect(boolToInt(matchDecoy), int(Decoy), r)
	r = subtle.ConstantTimeSelect(boolToInt(matchPanic), int(Panic), r)
	r = subtle.ConstantTimeSelect(boolToInt(matchMaster), int(Master), r)
	return Result(r)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// waitOutFloor blocks until FloorDelay + a uniform random jitter in
// [0, JitterDelay) has elapsed since start. This is best-effort defense
// in depth on top of the constant-time primitives above, not a
// substitute for them: the real timing guarantee comes from AEAD/
// hash-compare being constant-time, not from this sleep.
func waitOutFloor(start time.Time, cfg Config) {
	target := cfg.FloorDelay + randomJitter(cfg.JitterDelay)
	elapsed := time.Since(start)
	if remaining := target - elapsed; remaining > 0 {
		time.Sleep(remaining)
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// Fall back to eight bytes from rand.Read reduced modulo max
		// rather than zero jitter, so a rand.Int failure doesn't
		// silently collapse the jitter distribution to a single point.
		var buf [8]byte
		_, _ = rand.Read(buf[:])
		return time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(max))
	}
	return time.Duration(n.Int64())
}
