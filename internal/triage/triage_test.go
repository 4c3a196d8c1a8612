package triage

import (
	"testing"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
)

func testSetup(t *testing.T) (crypto.Params, Verifiers) {
	t.Helper()
	salt, err := crypto.SecureRandom(crypto.SaltLength)
	if err != nil {
		t.Fatalf("SecureRandom failed: %v", err)
	}
	params := crypto.Params{
		Algorithm:   crypto.KDFArgon2id,
		Salt:        salt,
		TimeCost:    1,
		MemoryKB:    19 * 1024,
		Parallelism: 1,
	}

	verifierFor := func(password string) crypto.Verifier {
		kek, err := crypto.Derive([]byte(password), params)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		defer kek.Zeroize()
		v, err := crypto.ComputeVerifier(kek)
		if err != nil {
			t.Fatalf("ComputeVerifier failed: %v", err)
		}
		return v
	}

	verifiers := Verifiers{
		Master: verifierFor("master-pw"),
		Panic:  verifierFor("panic-pw"),
		Decoy:  verifierFor("decoy-pw"),
	}
	return params, verifiers
}

func fastConfig(params crypto.Params, verifiers Verifiers) Config {
	return Config{
		Params:      params,
		Verifiers:   verifiers,
		FloorDelay:  1 * time.Millisecond,
		JitterDelay: 1 * time.Millisecond,
	}
}

func TestClassifyMaster(t *testing.T) {
	params, verifiers := testSetup(t)
	cfg := fastConfig(params, verifiers)
	got, kek := Classify([]byte("master-pw"), cfg)
	if got != Master {
		t.Errorf("Classify(master-pw) = %v, want Master", got)
	}
	if kek == nil {
		t.Fatal("Classify(master-pw) returned a nil KEK, want a usable one")
	}
	kek.Zeroize()
}

func TestClassifyPanic(t *testing.T) {
	params, verifiers := testSetup(t)
	cfg := fastConfig(params, verifiers)
	got, kek := Classify([]byte("panic-pw"), cfg)
	if got != Panic {
		t.Errorf("Classify(panic-pw) = %v, want Panic", got)
	}
	if kek != nil {
		t.Error("Classify(panic-pw) should not return a KEK: nothing is ever wrapped under it")
	}
}

func TestClassifyDecoy(t *testing.T) {
	params, verifiers := testSetup(t)
	cfg := fastConfig(params, verifiers)
	got, kek := Classify([]byte("decoy-pw"), cfg)
	if got != Decoy {
		t.Errorf("Classify(decoy-pw) = %v, want Decoy", got)
	}
	if kek == nil {
		t.Fatal("Classify(decoy-pw) returned a nil KEK, want a usable one")
	}
	kek.Zeroize()
}

func TestClassifyInvalid(t *testing.T) {
	params, verifiers := testSetup(t)
	cfg := fastConfig(params, verifiers)
	got, kek := Classify([]byte("not-any-of-them"), cfg)
	if got != Invalid {
		t.Errorf("Classify(wrong password) = %v, want Invalid", got)
	}
	if kek != nil {
		t.Error("Classify(wrong password) should not return a KEK")
	}
}

func TestClassifyHonorsFloorDelay(t *testing.T) {
	params, verifiers := testSetup(t)
	cfg := fastConfig(params, verifiers)
	cfg.FloorDelay = 50 * time.Millisecond
	cfg.JitterDelay = 0

	start := time.Now()
	_, kek := Classify([]byte("master-pw"), cfg)
	if kek != nil {
		kek.Zeroize()
	}
	elapsed := time.Since(start)
	if elapsed < cfg.FloorDelay {
		t.Errorf("Classify returned after %v, want at least floor delay %v", elapsed, cfg.FloorDelay)
	}
}

func TestResultString(t *testing.T) {
	cases := map[Result]string{
		Master:  "master",
		Panic:   "panic",
		Decoy:   "decoy",
		Invalid: "invalid",
	}
	for result, want := range cases {
		if got := result.String(); got != want {
			t.Errorf("Result(%d).String() = %q, want %q", result, got, want)
		}
	}
}

func TestSelectResultPriorityOrder(t *testing.T) {
	// Master takes priority even if (impossibly) multiple booleans are true.
	if got := selectResult(true, true, true); got != Master {
		t.Errorf("selectResult(true,true,true) = %v, want Master", got)
	}
	if got := selectResult(false, true, true); got != Panic {
		t.Errorf("selectResult(false,true,true) = %v, want Panic", got)
	}
	if got := selectResult(false, false, true); got != Decoy {
		t.Errorf("selectResult(false,false,true) = %v, want Decoy", got)
	}
	if got := selectResult(false, false, false); got != Invalid {
		t.Errorf("selectResult(false,false,false) = %v, want Invalid", got)
	}
}
