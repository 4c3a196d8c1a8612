package vault

import "testing"

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNone, 0},
		{KindAuthInvalid, 2},
		{KindAuthLocked, 3},
		{KindConfigMissing, 4},
		{KindConfigCorruptedRecoverable, 4},
		{KindConfigCorruptedFatal, 4},
		{KindTampered, 5},
		{KindPanicCompleted, 6},
		{KindKdfUnavailable, 1},
		{KindIoFailure, 1},
	}
	for _, c := range cases {
		if got := c.kind.ExitCode(); got != c.want {
			t.Errorf("Kind(%d).ExitCode() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestAuthInvalidMessageDoesNotLeakDetail(t *testing.T) {
	err := AuthInvalid("vmk unwrap failed despite verifier match")
	if err.Message != "authentication failed" {
		t.Errorf("AuthInvalid message = %q, want a fixed generic message", err.Message)
	}
	if err.Detail == "" {
		t.Error("AuthInvalid should still carry internal detail for logging")
	}
}

func TestAuthLockedCarriesRemaining(t *testing.T) {
	err := AuthLocked(42)
	if err.Remaining != 42 {
		t.Errorf("AuthLocked Remaining = %d, want 42", err.Remaining)
	}
	if err.Kind != KindAuthLocked {
		t.Errorf("AuthLocked Kind = %v, want KindAuthLocked", err.Kind)
	}
}

func TestConfigCorruptedFatalVsRecoverable(t *testing.T) {
	fatal := ConfigCorrupted(true, "both copies invalid")
	if fatal.Kind != KindConfigCorruptedFatal {
		t.Errorf("ConfigCorrupted(true) Kind = %v, want KindConfigCorruptedFatal", fatal.Kind)
	}
	recoverable := ConfigCorrupted(false, "restored from backup")
	if recoverable.Kind != KindConfigCorruptedRecoverable {
		t.Errorf("ConfigCorrupted(false) Kind = %v, want KindConfigCorruptedRecoverable", recoverable.Kind)
	}
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	var err error = Tampered("file-id-abc")
	if err.Error() == "" {
		t.Error("Error() should return a non-empty message")
	}
}
