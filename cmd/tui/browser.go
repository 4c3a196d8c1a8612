// Package tui implements GhostVault's interactive file browser: a
// read-mostly tview/tcell front end over an already-open vault.Service.
// The surface is one list plus a detail pane, not a full
// credential-manager dashboard, so one package carries it.
package tui

import (
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ghostvault/ghostvault/internal/vault"
)

// Run launches the file browser against an already-open Service. It
// never prompts for a password and never closes the vault on exit.
// The caller (runTui in cmd/tui.go) owns the seated key's lifetime.
func Run(svc *vault.Service) error {
	app := tview.NewApplication()

	list := tview.NewList().ShowSecondaryText(true)
	list.SetBorder(true).SetTitle(" ghostvault ")

	detail := tview.NewTextView().SetDynamicColors(true)
	detail.SetBorder(true).SetTitle(" detail ")

	status := tview.NewTextView().SetText("enter: export to /tmp   d: delete   q: quit")

	flex := tview.NewFlex().
		AddItem(list, 0, 1, true).
		AddItem(detail, 0, 2, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(flex, 0, 1, true).
		AddItem(status, 1, 0, false)

	reload := func() error {
		entries, err := svc.List()
		if err != nil {
			return err
		}
		list.Clear()
		for _, e := range entries {
			entry := e
			secondary := fmt.Sprintf("%d bytes  %s", entry.Size, entry.ModifiedAt.Format("2006-01-02 15:04"))
			list.AddItem(entry.Name, secondary, 0, func() {
				showDetail(detail, entry)
			})
		}
		return nil
	}
	if err := reload(); err != nil {
		return err
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			app.Stop()
			return nil
		case 'd':
			idx := list.GetCurrentItem()
			if idx < 0 {
				return nil
			}
			name, _ := list.GetItemText(idx)
			_ = svc.Delete(name)
			_ = reload()
			return nil
		case '\r', '\n':
			idx := list.GetCurrentItem()
			if idx < 0 {
				return nil
			}
			name, _ := list.GetItemText(idx)
			data, err := svc.Get(name)
			if err == nil {
				out := "/tmp/ghostvault-" + name
				_ = os.WriteFile(out, data, 0600)
				status.SetText("exported to " + out)
			} else {
				status.SetText("error: " + err.Error())
			}
			return nil
		}
		return event
	})

	return app.SetRoot(root, true).SetFocus(list).Run()
}

func showDetail(detail *tview.TextView, e vault.ListEntry) {
	detail.Clear()
	fmt.Fprintf(detail, "[yellow]name:[white]     %s\n", e.Name)
	fmt.Fprintf(detail, "[yellow]size:[white]     %d bytes\n", e.Size)
	fmt.Fprintf(detail, "[yellow]sha256:[white]   %s\n", e.SHA256)
	fmt.Fprintf(detail, "[yellow]category:[white] %s\n", e.Category)
	fmt.Fprintf(detail, "[yellow]created:[white]  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(detail, "[yellow]modified:[white] %s\n", e.ModifiedAt.Format("2006-01-02 15:04:05"))
}
