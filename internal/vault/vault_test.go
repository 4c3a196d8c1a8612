package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostvault/ghostvault/internal/observer"
)

type fakePanicExecutor struct {
	called int
	err    error
}

func (f *fakePanicExecutor) Execute(dryRun bool) error {
	f.called++
	return f.err
}

type recordingObserver struct {
	preUnlock int
	postLock  int
	prePanic  int
}

func (r *recordingObserver) OnPreUnlock(ev observer.Event) error { r.preUnlock++; return nil }
func (r *recordingObserver) OnPostLock(ev observer.Event) error  { r.postLock++; return nil }
func (r *recordingObserver) OnPrePanic(ev observer.Event) error  { r.prePanic++; return nil }

func setupTestVault(t *testing.T) (*Service, *fakePanicExecutor) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		Root:           filepath.Join(dir, "vault"),
		DecoyRoot:      filepath.Join(dir, "decoy"),
		AttemptsPath:   filepath.Join(dir, "attempts"),
		MaxAttempts:    3,
		LockoutSeconds: 60,
		FloorDelay:     1 * time.Millisecond,
		JitterDelay:    1 * time.Millisecond,
		KdfTargetMS:    10,
		KdfMemCapMB:    32,
	}
	svc := New(opts)
	pe := &fakePanicExecutor{}
	svc.SetPanicExecutor(pe)
	return svc, pe
}

const (
	testMasterPW = "master-password-123"
	testPanicPW  = "panic-password-456"
	testDecoyPW  = "decoy-password-789"
)

func TestSetupThenOpenMaster(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if err := svc.Open([]byte(testMasterPW)); err != nil {
		t.Fatalf("Open with master password failed: %v", err)
	}
	if svc.Mode() != observer.ModeMaster {
		t.Errorf("Mode() = %v, want ModeMaster", svc.Mode())
	}
}

func TestSetupRefusesOverExistingConfig(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("first Setup failed: %v", err)
	}
	err := svc.Setup([]byte("other-master"), []byte("other-panic"), []byte("other-decoy"))
	if err == nil {
		t.Fatal("second Setup over existing config should fail")
	}
}

func TestOpenDecoyModeSeedsFiller(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := svc.Open([]byte(testDecoyPW)); err != nil {
		t.Fatalf("Open with decoy password failed: %v", err)
	}
	if svc.Mode() != observer.ModeDecoy {
		t.Fatalf("Mode() = %v, want ModeDecoy", svc.Mode())
	}

	entries, err := svc.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("decoy vault should contain seeded filler files")
	}
}

func TestOpenPanicInvokesExecutorAndReturnsTerminalError(t *testing.T) {
	svc, pe := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	err := svc.Open([]byte(testPanicPW))
	if err == nil {
		t.Fatal("Open with panic password should return a terminal error")
	}
	vaultErr, ok := err.(*Error)
	if !ok || vaultErr.Kind != KindPanicCompleted {
		t.Fatalf("Open with panic password returned %v, want KindPanicCompleted", err)
	}
	if pe.called != 1 {
		t.Errorf("panic executor called %d times, want 1", pe.called)
	}
}

func TestOpenWrongPasswordRecordsFailure(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	err := svc.Open([]byte("totally-wrong"))
	if err == nil {
		t.Fatal("Open with wrong password should fail")
	}
	vaultErr, ok := err.(*Error)
	if !ok || vaultErr.Kind != KindAuthInvalid {
		t.Fatalf("Open with wrong password returned %v, want KindAuthInvalid", err)
	}
}

func TestOpenLocksOutAfterMaxAttempts(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = svc.Open([]byte("wrong-password"))
	}

	err := svc.Open([]byte(testMasterPW))
	if err == nil {
		t.Fatal("Open after exceeding max attempts should fail even with the correct password")
	}
	vaultErr, ok := err.(*Error)
	if !ok || vaultErr.Kind != KindAuthLocked {
		t.Fatalf("Open while locked out returned %v, want KindAuthLocked", err)
	}
}

func TestOpenOnMissingConfig(t *testing.T) {
	svc, _ := setupTestVault(t)
	err := svc.Open([]byte(testMasterPW))
	if err == nil {
		t.Fatal("Open on an uninitialized vault should fail")
	}
	vaultErr, ok := err.(*Error)
	if !ok || vaultErr.Kind != KindConfigMissing {
		t.Fatalf("Open on missing config returned %v, want KindConfigMissing", err)
	}
}

func TestPutGetDeleteRenameRoundTrip(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := svc.Open([]byte(testMasterPW)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := svc.Put("notes.txt", []byte("hello vault"), "personal"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := svc.Get("notes.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello vault" {
		t.Errorf("Get returned %q, want %q", got, "hello vault")
	}

	if err := svc.Rename("notes.txt", "renamed.txt"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := svc.Get("notes.txt"); err == nil {
		t.Error("Get on old name should fail after Rename")
	}
	if _, err := svc.Get("renamed.txt"); err != nil {
		t.Fatalf("Get on new name after Rename failed: %v", err)
	}

	if err := svc.Delete("renamed.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get("renamed.txt"); err == nil {
		t.Error("Get after Delete should fail")
	}
}

func TestOperationsFailWhenNotOpen(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, err := svc.List(); err == nil {
		t.Error("List before Open should fail")
	}
	if err := svc.Put("x.txt", []byte("y"), ""); err == nil {
		t.Error("Put before Open should fail")
	}
}

func TestCloseZeroizesAndResetsMode(t *testing.T) {
	svc, _ := setupTestVault(t)
	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := svc.Open([]byte(testMasterPW)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if svc.Mode() != observer.ModeNone {
		t.Errorf("Mode() after Close = %v, want ModeNone", svc.Mode())
	}
	if _, err := svc.List(); err == nil {
		t.Error("List after Close should fail")
	}
}

func TestObserversFireOnUnlockAndLock(t *testing.T) {
	svc, _ := setupTestVault(t)
	obs := &recordingObserver{}
	svc.RegisterObserver(obs)

	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := svc.Open([]byte(testMasterPW)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if obs.preUnlock != 1 {
		t.Errorf("preUnlock fired %d times, want 1", obs.preUnlock)
	}
	if obs.postLock != 1 {
		t.Errorf("postLock fired %d times, want 1", obs.postLock)
	}
}

func TestObserverFiresOnPanic(t *testing.T) {
	svc, _ := setupTestVault(t)
	obs := &recordingObserver{}
	svc.RegisterObserver(obs)

	if err := svc.Setup([]byte(testMasterPW), []byte(testPanicPW), []byte(testDecoyPW)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	_ = svc.Open([]byte(testPanicPW))

	if obs.prePanic != 1 {
		t.Errorf("prePanic fired %d times, want 1", obs.prePanic)
	}
}
