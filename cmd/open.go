package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/observer"
)

var openCmd = &cobra.Command{
	Use:     "open",
	GroupID: "vault",
	Short:   "Unlock the vault and start an interactive session",
	Long: `Open prompts for a password and classifies it against the master,
panic, and decoy slots in constant time. Depending on which slot
matches, it:

  - seats the master key and drops into an interactive session against
    the real vault;
  - seats the decoy key and drops into an interactive session against
    a separate, plausible-looking vault;
  - executes the panic sequence and exits immediately, with no further
    interaction and no indication of what happened beyond this
    process's own exit code.

Five consecutive wrong passwords (the default attempts_max) lock
further attempts out for a cooldown window (see "ghostvault doctor").`,
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	password, err := readPassword("password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if err := svc.Open(password); err != nil {
		return err
	}
	defer svc.Close()

	switch svc.Mode() {
	case observer.ModeMaster:
		fmt.Println("vault open (master)")
	case observer.ModeDecoy:
		fmt.Println("vault open")
	}

	return runShell(svc)
}
