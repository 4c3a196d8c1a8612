package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"

	"github.com/ghostvault/ghostvault/internal/storage"
	"github.com/ghostvault/ghostvault/internal/vault"
)

func TestShowDetailRendersEntryFields(t *testing.T) {
	detail := tview.NewTextView().SetDynamicColors(true)
	entry := vault.ListEntry{
		Name: "notes.txt",
		FileEntry: storage.FileEntry{
			Size:       1234,
			SHA256:     "abc123def456",
			Category:   "personal",
			CreatedAt:  time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
			ModifiedAt: time.Date(2026, 1, 3, 11, 30, 0, 0, time.UTC),
		},
	}

	showDetail(detail, entry)
	got := detail.GetText(true)

	for _, want := range []string{"notes.txt", "1234 bytes", "abc123def456", "personal", "2026-01-02", "2026-01-03"} {
		if !strings.Contains(got, want) {
			t.Errorf("showDetail output missing %q, got: %s", want, got)
		}
	}
}

func TestShowDetailClearsPreviousContent(t *testing.T) {
	detail := tview.NewTextView().SetDynamicColors(true)
	first := vault.ListEntry{Name: "first.txt", FileEntry: storage.FileEntry{Size: 1}}
	second := vault.ListEntry{Name: "second.txt", FileEntry: storage.FileEntry{Size: 2}}

	showDetail(detail, first)
	showDetail(detail, second)

	got := detail.GetText(true)
	if strings.Contains(got, "first.txt") {
		t.Error("showDetail did not clear the previous entry's content")
	}
	if !strings.Contains(got, "second.txt") {
		t.Error("showDetail should show the latest entry's content")
	}
}
