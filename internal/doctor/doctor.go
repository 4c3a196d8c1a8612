// Package doctor implements the read-only diagnostics command: a fixed
// set of Checkers, each returning a Result, aggregated into a Report
// with a single summary exit code. Every check here is
// read-only: it never unlocks the vault and never touches key
// material, so `ghostvault doctor` is safe to run while a vault is
// locked or even before `setup`.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ghostvault/ghostvault/internal/configstore"
	"github.com/ghostvault/ghostvault/internal/limiter"
)

// Exit codes for the doctor command.
const (
	ExitHealthy  = 0
	ExitWarnings = 1
	ExitErrors   = 2
)

type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Checker is one diagnostic probe.
type Checker interface {
	Name() string
	Run(ctx context.Context) Result
}

// Result is one check's outcome.
type Result struct {
	Name           string      `json:"name"`
	Status         Status      `json:"status"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation,omitempty"`
	Details        interface{} `json:"details,omitempty"`
}

// Summary aggregates Results into pass/warning/error counts and the
// single process exit code.
type Summary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
	ExitCode int `json:"exit_code"`
}

// Report is the full diagnostics output.
type Report struct {
	Summary   Summary  `json:"summary"`
	Checks    []Result `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures which roots and paths the checkers inspect.
type Options struct {
	Root         string
	DecoyRoot    string
	AttemptsPath string
}

// Run executes the fixed checker set and returns an aggregated Report.
func Run(ctx context.Context, opts Options) Report {
	checkers := []Checker{
		&configChecker{root: opts.Root, label: "config"},
		&saltChecker{root: opts.Root},
		&metadataChecker{root: opts.Root, label: "metadata"},
		&metadataChecker{root: opts.DecoyRoot, label: "decoy-metadata"},
		&limiterChecker{path: opts.AttemptsPath},
		&quarantineChecker{root: opts.Root},
	}

	results := make([]Result, 0, len(checkers))
	for _, c := range checkers {
		results = append(results, c.Run(ctx))
	}

	summary := buildSummary(results)
	return Report{Summary: summary, Checks: results, Timestamp: time.Now()}
}

func buildSummary(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusWarning:
			s.Warnings++
		case StatusError:
			s.Errors++
		}
	}
	switch {
	case s.Errors > 0:
		s.ExitCode = ExitErrors
	case s.Warnings > 0:
		s.ExitCode = ExitWarnings
	default:
		s.ExitCode = ExitHealthy
	}
	return s
}

// configChecker reports the config store's CRC/state without decoding
// any secret field.
type configChecker struct {
	root  string
	label string
}

func (c *configChecker) Name() string { return c.label }

func (c *configChecker) Run(context.Context) Result {
	store := configstore.New(c.root)
	switch state := store.Status(); state {
	case configstore.Missing:
		return Result{Name: c.Name(), Status: StatusWarning,
			Message:        "no config record found",
			Recommendation: "run `ghostvault setup`"}
	case configstore.Valid:
		return Result{Name: c.Name(), Status: StatusPass, Message: "config record is valid"}
	case configstore.CorruptedRecoverable:
		return Result{Name: c.Name(), Status: StatusWarning,
			Message:        "primary config record failed its CRC check; config.bak is valid",
			Recommendation: "run `ghostvault doctor --recover` to persist the restored copy"}
	default:
		return Result{Name: c.Name(), Status: StatusError,
			Message:        "config record and its backup are both unreadable",
			Recommendation: "no password (master, decoy or panic) can be classified until a valid config record is restored"}
	}
}

// saltChecker confirms the detached .salt file exists and is non-empty,
// without reading the config record it accompanies.
type saltChecker struct {
	root string
}

func (s *saltChecker) Name() string { return "salt" }

func (s *saltChecker) Run(context.Context) Result {
	path := filepath.Join(s.root, ".salt")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: s.Name(), Status: StatusWarning, Message: "no .salt file present"}
		}
		return Result{Name: s.Name(), Status: StatusError, Message: fmt.Sprintf("cannot stat .salt: %v", err)}
	}
	if info.Size() < 16 {
		return Result{Name: s.Name(), Status: StatusError, Message: "salt file is shorter than the minimum 16 bytes"}
	}
	return Result{Name: s.Name(), Status: StatusPass, Message: fmt.Sprintf(".salt present (%d bytes)", info.Size())}
}

// metadataChecker reports whether an encrypted metadata blob (and its
// one-generation backup) are present, without decrypting either.
type metadataChecker struct {
	root  string
	label string
}

func (m *metadataChecker) Name() string { return m.label }

func (m *metadataChecker) Run(context.Context) Result {
	path := filepath.Join(m.root, "metadata")
	bak := filepath.Join(m.root, "metadata.bak")

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Result{Name: m.Name(), Status: StatusPass, Message: "no metadata yet (empty vault)"}
	}
	if err != nil {
		return Result{Name: m.Name(), Status: StatusError, Message: fmt.Sprintf("cannot stat metadata: %v", err)}
	}
	_, bakErr := os.Stat(bak)
	details := map[string]interface{}{"size": info.Size(), "has_backup": bakErr == nil}
	return Result{Name: m.Name(), Status: StatusPass, Message: "metadata blob present", Details: details}
}

// limiterChecker surfaces the current attempt count and lockout state.
type limiterChecker struct {
	path string
}

func (l *limiterChecker) Name() string { return "attempt-limiter" }

func (l *limiterChecker) Run(context.Context) Result {
	lim := limiter.New(l.path, 0, 0)
	st, err := lim.Snapshot()
	if err != nil {
		return Result{Name: l.Name(), Status: StatusError, Message: fmt.Sprintf("cannot read attempts file: %v", err)}
	}
	if st.LockoutUntil == 0 {
		return Result{Name: l.Name(), Status: StatusPass,
			Message: fmt.Sprintf("%d failed attempt(s) recorded, not locked out", st.FailedCount),
			Details: st}
	}
	remaining := st.LockoutUntil - time.Now().UnixMilli()
	if remaining <= 0 {
		return Result{Name: l.Name(), Status: StatusPass, Message: "lockout window has elapsed"}
	}
	return Result{Name: l.Name(), Status: StatusWarning,
		Message: fmt.Sprintf("locked out for %ds more", remaining/1000),
		Details: st}
}

// quarantineChecker reports tampered-record count, if any.
type quarantineChecker struct {
	root string
}

func (q *quarantineChecker) Name() string { return "quarantine" }

func (q *quarantineChecker) Run(context.Context) Result {
	dir := filepath.Join(q.root, "quarantine")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return Result{Name: q.Name(), Status: StatusPass, Message: "no quarantined records"}
	}
	if err != nil {
		return Result{Name: q.Name(), Status: StatusError, Message: fmt.Sprintf("cannot read quarantine dir: %v", err)}
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "index" {
			count++
		}
	}
	if count == 0 {
		return Result{Name: q.Name(), Status: StatusPass, Message: "no quarantined records"}
	}
	return Result{Name: q.Name(), Status: StatusWarning,
		Message:        fmt.Sprintf("%d quarantined record(s) present", count),
		Recommendation: "inspect quarantine/index for reasons; quarantined records are never auto-deleted"}
}
