package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostvault/ghostvault/internal/configstore"
	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/limiter"
)

func setupTestOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Root:         filepath.Join(dir, "vault"),
		DecoyRoot:    filepath.Join(dir, "decoy"),
		AttemptsPath: filepath.Join(dir, "attempts"),
	}
}

func TestRunOnFreshSystemWarnsConfigMissing(t *testing.T) {
	opts := setupTestOptions(t)
	report := Run(context.Background(), opts)

	if report.Summary.ExitCode != ExitWarnings {
		t.Errorf("ExitCode = %d, want ExitWarnings (missing config)", report.Summary.ExitCode)
	}

	found := false
	for _, r := range report.Checks {
		if r.Name == "config" {
			found = true
			if r.Status != StatusWarning {
				t.Errorf("config check status = %v, want StatusWarning", r.Status)
			}
		}
	}
	if !found {
		t.Error("report missing a config check result")
	}
}

func TestRunOnValidConfigPasses(t *testing.T) {
	opts := setupTestOptions(t)
	store := configstore.New(opts.Root)
	rec := configstore.Record{
		Version: 1,
		Params: crypto.Params{
			Algorithm: crypto.KDFArgon2id,
			Salt:      make([]byte, crypto.SaltLength),
		},
	}
	if err := store.SaveAtomic(rec); err != nil {
		t.Fatalf("SaveAtomic failed: %v", err)
	}

	report := Run(context.Background(), opts)
	for _, r := range report.Checks {
		if r.Name == "config" && r.Status != StatusPass {
			t.Errorf("config check status = %v, want StatusPass", r.Status)
		}
		if r.Name == "salt" && r.Status != StatusPass {
			t.Errorf("salt check status = %v, want StatusPass", r.Status)
		}
	}
}

func TestRunReportsLockout(t *testing.T) {
	opts := setupTestOptions(t)
	lim := limiter.New(opts.AttemptsPath, 1, 60)
	now := time.Now()
	if err := lim.RecordFailure(now); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	report := Run(context.Background(), opts)
	if report.Summary.ExitCode < ExitWarnings {
		t.Errorf("ExitCode = %d, want at least ExitWarnings while locked out", report.Summary.ExitCode)
	}
	found := false
	for _, r := range report.Checks {
		if r.Name == "attempt-limiter" {
			found = true
			if r.Status != StatusWarning {
				t.Errorf("attempt-limiter status = %v, want StatusWarning", r.Status)
			}
		}
	}
	if !found {
		t.Error("report missing attempt-limiter check result")
	}
}

func TestRunReportsQuarantinedRecords(t *testing.T) {
	opts := setupTestOptions(t)
	quarantineDir := filepath.Join(opts.Root, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0700); err != nil {
		t.Fatalf("mkdir quarantine: %v", err)
	}
	if err := os.WriteFile(filepath.Join(quarantineDir, "deadbeef"), []byte("tampered"), 0600); err != nil {
		t.Fatalf("write quarantined record: %v", err)
	}

	report := Run(context.Background(), opts)
	found := false
	for _, r := range report.Checks {
		if r.Name == "quarantine" {
			found = true
			if r.Status != StatusWarning {
				t.Errorf("quarantine status = %v, want StatusWarning", r.Status)
			}
		}
	}
	if !found {
		t.Error("report missing quarantine check result")
	}
}

func TestBuildSummaryExitCodePriority(t *testing.T) {
	results := []Result{
		{Status: StatusPass},
		{Status: StatusWarning},
		{Status: StatusError},
	}
	s := buildSummary(results)
	if s.ExitCode != ExitErrors {
		t.Errorf("ExitCode = %d, want ExitErrors when any error is present", s.ExitCode)
	}
	if s.Passed != 1 || s.Warnings != 1 || s.Errors != 1 {
		t.Errorf("summary counts = %+v, want 1/1/1", s)
	}
}

func TestBuildSummaryAllPassIsHealthy(t *testing.T) {
	results := []Result{{Status: StatusPass}, {Status: StatusPass}}
	s := buildSummary(results)
	if s.ExitCode != ExitHealthy {
		t.Errorf("ExitCode = %d, want ExitHealthy", s.ExitCode)
	}
}
