package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrAuth is the generic triage failure: wrong password, or a verifier
// that does not match. Never distinguish "wrong password" from
// "structurally malformed password" to the caller: both collapse to
// this one error.
var ErrAuth = errors.New("crypto: authentication failed")

// Verifier is SHA-256(KEK), a hash of the derived key-encryption-key,
// stored so triage can test "is this the right password" without ever
// persisting the KEK itself.
type Verifier [sha256.Size]byte

// ComputeVerifier hashes a KEK (borrowed for the duration of this call)
// into its verifier.
func ComputeVerifier(kek *SecretBuffer) (Verifier, error) {
	var v Verifier
	err := kek.AsSlice(func(k []byte) error {
		v = sha256.Sum256(k)
		return nil
	})
	return v, err
}

// ConstantTimeEqual compares two verifiers in constant time.
func (v Verifier) ConstantTimeEqual(other Verifier) bool {
	var diff byte
	for i := range v {
		diff |= v[i] ^ other[i]
	}
	return diff == 0
}

// WrappedKey is an AEAD-sealed 32-byte key: AEAD_enc(KEK, key, aad).
type WrappedKey []byte

// WrapMasterKey seals a VMK/DVMK under a KEK with the given AAD context
// ("vmk" or "dvmk").
func WrapMasterKey(kek *SecretBuffer, masterKey *SecretBuffer, aad []byte) (WrappedKey, error) {
	var wrapped []byte
	err := kek.AsSlice(func(k []byte) error {
		return masterKey.AsSlice(func(mk []byte) error {
			blob, err := Encrypt(k, mk, aad)
			if err != nil {
				return err
			}
			wrapped = blob
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return WrappedKey(wrapped), nil
}

// UnwrapMasterKey reverses WrapMasterKey. Any AEAD failure here means the
// wrong password simply never recovers a VMK: there is no partial or
// degraded success path.
func UnwrapMasterKey(kek *SecretBuffer, wrapped WrappedKey, aad []byte) (*SecretBuffer, error) {
	var out *SecretBuffer
	err := kek.AsSlice(func(k []byte) error {
		plaintext, err := Decrypt(k, wrapped, aad)
		if err != nil {
			return ErrAuth
		}
		defer ClearBytes(plaintext)
		if len(plaintext) != KeyLength {
			return fmt.Errorf("crypto: unwrapped key has wrong length %d", len(plaintext))
		}
		out = NewSecretBuffer(plaintext)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateMasterKey returns a fresh 32-byte random VMK/DVMK wrapped in a
// SecretBuffer.
func GenerateMasterKey() (*SecretBuffer, error) {
	raw, err := SecureRandom(KeyLength)
	if err != nil {
		return nil, err
	}
	defer ClearBytes(raw)
	return NewSecretBuffer(raw), nil
}

// Setup performs the one-time key-hierarchy bootstrap: derive three KEKs
// from three passwords under one shared KDF Params, compute all three
// verifiers, wrap the VMK under KEK_M and the DVMK under KEK_D, and
// deliberately never wrap anything under KEK_P. That omission is the
// panic slot's structural guarantee: there is no ciphertext anywhere
// that a correct panic password could ever unwrap into plaintext.
type SetupResult struct {
	Params    Params
	VerifierM Verifier
	VerifierP Verifier
	VerifierD Verifier
	WrappedM  WrappedKey
	WrappedD  WrappedKey
}

func Setup(params Params, masterPassword, panicPassword, decoyPassword []byte) (*SetupResult, *SecretBuffer, *SecretBuffer, error) {
	kekM, err := Derive(masterPassword, params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive master kek: %w", err)
	}
	defer kekM.Zeroize()

	kekP, err := Derive(panicPassword, params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive panic kek: %w", err)
	}
	defer kekP.Zeroize()

	kekD, err := Derive(decoyPassword, params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive decoy kek: %w", err)
	}
	defer kekD.Zeroize()

	vM, err := ComputeVerifier(kekM)
	if err != nil {
		return nil, nil, nil, err
	}
	vP, err := ComputeVerifier(kekP)
	if err != nil {
		return nil, nil, nil, err
	}
	vD, err := ComputeVerifier(kekD)
	if err != nil {
		return nil, nil, nil, err
	}
	if vM.ConstantTimeEqual(vP) || vM.ConstantTimeEqual(vD) || vP.ConstantTimeEqual(vD) {
		return nil, nil, nil, errors.New("crypto: the three passwords must be distinct")
	}

	vmk, err := GenerateMasterKey()
	if err != nil {
		return nil, nil, nil, err
	}
	dvmk, err := GenerateMasterKey()
	if err != nil {
		vmk.Zeroize()
		return nil, nil, nil, err
	}

	wrappedM, err := WrapMasterKey(kekM, vmk, []byte(AADVMKWrap))
	if err != nil {
		vmk.Zeroize()
		dvmk.Zeroize()
		return nil, nil, nil, err
	}
	wrappedD, err := WrapMasterKey(kekD, dvmk, []byte(AADDVMKWrap))
	if err != nil {
		vmk.Zeroize()
		dvmk.Zeroize()
		return nil, nil, nil, err
	}

	return &SetupResult{
		Params:    params,
		VerifierM: vM,
		VerifierP: vP,
		VerifierD: vD,
		WrappedM:  wrappedM,
		WrappedD:  wrappedD,
	}, vmk, dvmk, nil
}

// UnwrapVMK re-derives KEK_M and unwraps the VMK. Returns ErrAuth on any
// mismatch (wrong password or tampered wrapped blob).
func UnwrapVMK(password []byte, params Params, wrapped WrappedKey) (*SecretBuffer, error) {
	kek, err := Derive(password, params)
	if err != nil {
		return nil, err
	}
	defer kek.Zeroize()
	return UnwrapMasterKey(kek, wrapped, []byte(AADVMKWrap))
}

// UnwrapDVMK is UnwrapVMK's symmetric counterpart for the decoy slot.
func UnwrapDVMK(password []byte, params Params, wrapped WrappedKey) (*SecretBuffer, error) {
	kek, err := Derive(password, params)
	if err != nil {
		return nil, err
	}
	defer kek.Zeroize()
	return UnwrapMasterKey(kek, wrapped, []byte(AADDVMKWrap))
}
