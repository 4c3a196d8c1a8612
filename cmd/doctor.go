package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostvault/ghostvault/internal/configstore"
	"github.com/ghostvault/ghostvault/internal/doctor"
)

var (
	doctorJSON    bool
	doctorRecover bool
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "utility",
	Short:   "Run read-only diagnostics against the vault",
	Long: `Doctor inspects the config record's CRC validity, the detached salt
file, the metadata blobs (real and decoy), the attempt-limiter's lockout
state, and the quarantine directory, all without unlocking anything.

It never asks for a password and never touches key material.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "emit the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorRecover, "recover", false, "persist config.bak over a CRC-failed primary config, if the backup validates")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	opts, _, err := loadOptions()
	if err != nil {
		return err
	}

	if doctorRecover {
		store := configstore.New(opts.Root)
		if err := store.Recover(); err != nil {
			return err
		}
		fmt.Println("config.bak restored over config")
	}

	report := doctor.Run(context.Background(), doctor.Options{
		Root:         opts.Root,
		DecoyRoot:    opts.DecoyRoot,
		AttemptsPath: opts.AttemptsPath,
	})

	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(report)
	}

	os.Exit(report.Summary.ExitCode)
	return nil
}

func printDoctorReport(report doctor.Report) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	for _, r := range report.Checks {
		var tag string
		switch r.Status {
		case doctor.StatusPass:
			tag = colorize(true, green, "[pass]")
		case doctor.StatusWarning:
			tag = colorize(true, yellow, "[warn]")
		case doctor.StatusError:
			tag = colorize(true, red, "[fail]")
		}
		fmt.Printf("%s %-18s %s\n", tag, r.Name, r.Message)
		if r.Recommendation != "" {
			fmt.Printf("       %s\n", r.Recommendation)
		}
	}
	fmt.Printf("\n%d passed, %d warning(s), %d error(s)\n",
		report.Summary.Passed, report.Summary.Warnings, report.Summary.Errors)
}
