// Package cmd implements GhostVault's cobra command tree: the
// transport that drives internal/vault's orchestrator.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ghostvault/ghostvault/internal/vault"
)

var (
	cfgFile string
	verbose bool

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ghostvault",
	Short: "A single-user encrypted file vault with plausible deniability",
	Long: `GhostVault stores files under one encrypted root that can be opened
three different ways from one password prompt:

  - the master password opens the real vault
  - the decoy password opens a separate, plausible-looking vault
  - the panic password cryptographically destroys the real vault's
    key material and returns no indication that anything happened

Only one config record exists on disk; nothing about its bytes reveals
which of the three slots belongs to which behavior.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and maps GhostVault's vault.Error kinds
// onto the corresponding process exit codes. A completed panic prints
// nothing; only its exit code reports it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if ve, ok := err.(*vault.Error); !ok || ve.Kind != vault.KindPanicCompleted {
			fmt.Fprintf(os.Stderr, "ghostvault: %v\n", err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "preferences file (default: OS config dir/ghostvault/preferences.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostic output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddGroup(
		&cobra.Group{ID: "vault", Title: "Vault Lifecycle:"},
		&cobra.Group{ID: "files", Title: "File Operations:"},
		&cobra.Group{ID: "utility", Title: "Utilities:"},
	)
}

func initConfig() {
	if cfgFile != "" {
		os.Setenv("GHOSTVAULT_CONFIG", cfgFile)
	}
}
