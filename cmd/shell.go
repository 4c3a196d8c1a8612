package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/ghostvault/ghostvault/internal/vault"
)

// runShell is the "serve" phase: an interactive command loop over an
// already-open Service, exposing list/get/put/delete/rename/close. One
// process holds the seated VMK or DVMK for its entire lifetime; there is
// no persistence of unlocked state across process restarts, and no
// background wiper. The vault locks only when this loop exits or the
// operator runs `close` explicitly. There are no periodic background
// wipers; drop-on-exit is the only teardown path.
func runShell(svc *vault.Service) error {
	reader := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan)

	for {
		fmt.Fprint(os.Stderr, colorize(true, prompt, "ghostvault> "))
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "list", "ls":
			if err := shellList(svc); err != nil {
				printErr(err)
			}
		case "get":
			if len(rest) != 2 {
				fmt.Fprintln(os.Stderr, "usage: get <name> <output-path>")
				continue
			}
			if err := shellGet(svc, rest[0], rest[1]); err != nil {
				printErr(err)
			}
		case "put":
			if len(rest) < 2 {
				fmt.Fprintln(os.Stderr, "usage: put <input-path> <name> [category]")
				continue
			}
			category := ""
			if len(rest) > 2 {
				category = rest[2]
			}
			if err := shellPut(svc, rest[0], rest[1], category); err != nil {
				printErr(err)
			}
		case "delete", "rm":
			if len(rest) != 1 {
				fmt.Fprintln(os.Stderr, "usage: delete <name>")
				continue
			}
			if err := svc.Delete(rest[0]); err != nil {
				printErr(err)
			}
		case "rename", "mv":
			if len(rest) != 2 {
				fmt.Fprintln(os.Stderr, "usage: rename <old> <new>")
				continue
			}
			if err := svc.Rename(rest[0], rest[1]); err != nil {
				printErr(err)
			}
		case "close", "exit", "quit":
			return svc.Close()
		case "help":
			printHelp()
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (try \"help\")\n", cmd)
		}
	}
	return svc.Close()
}

func shellList(svc *vault.Service) error {
	entries, err := svc.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Name", "Size", "SHA-256", "Category", "Modified"})
	for _, e := range entries {
		table.Append([]string{
			e.Name,
			fmt.Sprintf("%d", e.Size),
			e.SHA256[:12] + "...",
			e.Category,
			e.ModifiedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func shellGet(svc *vault.Service, name, outPath string) error {
	data, err := svc.Get(name)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0600)
}

func shellPut(svc *vault.Service, inPath, name, category string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return svc.Put(name, data, category)
}

func printErr(err error) {
	red := color.New(color.FgRed)
	fmt.Fprintln(os.Stderr, colorize(true, red, "error: %v", err))
}

func printHelp() {
	fmt.Println(`commands:
  list                              list files
  get <name> <output-path>          decrypt a file to disk
  put <input-path> <name> [cat]     encrypt a file into the vault
  delete <name>                     remove a file
  rename <old> <new>                rename a file
  close                             lock the vault and exit`)
}
