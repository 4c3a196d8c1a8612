package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ghostvault/ghostvault/cmd/tui"
	"github.com/ghostvault/ghostvault/internal/crypto"
)

var tuiCmd = &cobra.Command{
	Use:     "tui",
	GroupID: "files",
	Short:   "Unlock the vault and browse files in an interactive TUI",
	Long: `Tui authenticates exactly like "ghostvault open", then replaces the
line-oriented shell with a tview/tcell file browser: arrow keys to
navigate, enter to export the selected file, d to delete it, q to quit.

A panic classification here behaves exactly as it does for "open": the
panic sequence runs and the process exits before any TUI is drawn.`,
	RunE: runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTui(cmd *cobra.Command, args []string) error {
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

	return tui.Run(svc)
}
