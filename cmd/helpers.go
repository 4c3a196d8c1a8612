package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/howeyc/gopass"
	"golang.org/x/term"

	"github.com/ghostvault/ghostvault/internal/panicexec"
	"github.com/ghostvault/ghostvault/internal/userconfig"
	"github.com/ghostvault/ghostvault/internal/vault"
)

// readPassword prompts prompt on stderr and reads a password from stdin
// with asterisk masking, falling back to an unmasked scan when stdin
// isn't a terminal (piped input, tests).
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		var line string
		if _, err := fmt.Scanln(&line); err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		return []byte(line), nil
	}
	pw, err := gopass.GetPasswdMasked()
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

// loadOptions resolves effective vault.Options from the user preferences
// file plus any environment overrides already applied by viper inside
// userconfig.Load.
func loadOptions() (vault.Options, userconfig.Config, error) {
	cfg, err := userconfig.Load()
	if err != nil {
		return vault.Options{}, cfg, err
	}
	opts := vault.Options{
		Root:           cfg.VaultRoot,
		DecoyRoot:      cfg.DecoyRoot,
		AttemptsPath:   cfg.AttemptsPath,
		MaxAttempts:    cfg.AttemptsMax,
		LockoutSeconds: cfg.LockoutSeconds,
		FloorDelay:     time.Duration(cfg.TriageFloorMs) * time.Millisecond,
		JitterDelay:    time.Duration(cfg.TriageJitterMs) * time.Millisecond,
		KdfTargetMS:    cfg.KdfTargetMs,
		KdfMemCapMB:    cfg.KdfMemCapMb,
	}
	return opts, cfg, nil
}

// newService builds a fully-wired orchestrator Service: config knobs
// from preferences, and the panic executor already attached, so that a
// Panic classification during `open` executes for real without any
// further setup at the call site.
func newService() (*vault.Service, error) {
	opts, _, err := loadOptions()
	if err != nil {
		return nil, err
	}
	svc := vault.New(opts)
	svc.SetPanicExecutor(&panicexec.Executor{
		Root:         opts.Root,
		DecoyRoot:    opts.DecoyRoot,
		AttemptsPath: opts.AttemptsPath,
	})
	return svc, nil
}

// exitCodeFor maps a returned error onto the CLI's process exit
// codes. Errors that are not a *vault.Error (flag parsing, I/O outside
// the vault) fall back to the conventional generic failure code 1.
func exitCodeFor(err error) int {
	if ve, ok := err.(*vault.Error); ok {
		return ve.Kind.ExitCode()
	}
	return 1
}

func colorize(enabled bool, c *color.Color, format string, a ...interface{}) string {
	if !enabled {
		return fmt.Sprintf(format, a...)
	}
	return c.Sprintf(format, a...)
}
