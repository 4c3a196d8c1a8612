package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostvault/ghostvault/internal/crypto"
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: "vault",
	Short:   "Create a new vault with master, panic, and decoy passwords",
	Long: `Setup prompts for three distinct passwords and writes a single config
record that embeds all three. The three passwords MUST be different from
each other; setup fails closed (no partial config is written) if any two
collide.

There is no flag to see which slot is which after this point. That is
the entire point. Write down which password does what somewhere only
you can find it.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	master, err := readPassword("master password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(master)

	panicPw, err := readPassword("panic password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(panicPw)

	decoy, err := readPassword("decoy password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(decoy)

	confirmMaster, err := readPassword("confirm master password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(confirmMaster)
	if string(confirmMaster) != string(master) {
		return fmt.Errorf("master password confirmation did not match")
	}

	if err := svc.Setup(master, panicPw, decoy); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	fmt.Println(colorize(true, green, "vault initialized"))
	return nil
}
