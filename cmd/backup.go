package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ghostvault/ghostvault/internal/backupqr"
	"github.com/ghostvault/ghostvault/internal/configstore"
)

var (
	backupPNGPrefix string
	backupSize      int
)

var backupCmd = &cobra.Command{
	Use:     "backup-qr",
	GroupID: "utility",
	Short:   "Export the config record as a QR code for offline paper backup",
	Long: `Backup-qr renders the opaque config record (the same bytes already on
disk at config/config.bak) as one or more QR codes. The record contains
no plaintext secret: KDF parameters, three verifier hashes, and two
AEAD-wrapped keys. Scanning it back in later and writing the decoded
bytes to the config path restores exactly what was exported. It is not
a secondary credential.

With --png, writes one PNG file per QR code instead of a terminal
preview.`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVar(&backupPNGPrefix, "png", "", "write PNG file(s) at this path prefix instead of a terminal preview")
	backupCmd.Flags().IntVar(&backupSize, "size", 320, "PNG size in pixels (square)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	opts, _, err := loadOptions()
	if err != nil {
		return err
	}
	store := configstore.New(opts.Root)
	if store.Status() != configstore.Valid {
		return fmt.Errorf("no valid config record to export")
	}
	raw, err := os.ReadFile(filepath.Join(opts.Root, "config"))
	if err != nil {
		return err
	}

	if backupPNGPrefix != "" {
		paths, err := backupqr.ExportPNG(backupPNGPrefix, raw, backupSize)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}

	backupqr.DisplayTerminal(os.Stdout, raw)
	return nil
}
