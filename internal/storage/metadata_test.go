package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
)

func setupTestMetadataStore(t *testing.T) (*MetadataStore, string) {
	t.Helper()
	root := t.TempDir()
	return NewMetadataStore(root), root
}

func TestIndexNamesSorted(t *testing.T) {
	idx := NewIndex()
	idx.Entries["zebra.txt"] = FileEntry{FileID: "1"}
	idx.Entries["apple.txt"] = FileEntry{FileID: "2"}
	idx.Entries["mango.txt"] = FileEntry{FileID: "3"}

	names := idx.Names()
	want := []string{"apple.txt", "mango.txt", "zebra.txt"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMetadataLoadMissingIsEmptyIndex(t *testing.T) {
	m, _ := setupTestMetadataStore(t)
	vmk := testVMK(t)
	defer vmk.Zeroize()

	idx, err := m.Load(vmk)
	if err != nil {
		t.Fatalf("Load on missing metadata failed: %v", err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("Load on missing metadata = %d entries, want 0", len(idx.Entries))
	}
}

func TestMetadataSaveLoadRoundTrip(t *testing.T) {
	m, _ := setupTestMetadataStore(t)
	vmk := testVMK(t)
	defer vmk.Zeroize()

	idx := NewIndex()
	idx.Entries["report.pdf"] = FileEntry{
		FileID:     "abc123",
		Size:       4096,
		SHA256:     "deadbeef",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ModifiedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := m.Save(vmk, idx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.Load(vmk)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	entry, ok := got.Entries["report.pdf"]
	if !ok {
		t.Fatal("loaded index missing expected entry")
	}
	if entry.FileID != "abc123" || entry.Size != 4096 {
		t.Errorf("loaded entry mismatch: %+v", entry)
	}
}

func TestMetadataLoadWrongVMKFails(t *testing.T) {
	m, _ := setupTestMetadataStore(t)
	vmk := testVMK(t)
	defer vmk.Zeroize()
	other := testVMK(t)
	defer other.Zeroize()

	if err := m.Save(vmk, NewIndex()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := m.Load(other); err == nil {
		t.Error("Load with wrong vmk should fail")
	}
}

func TestMetadataSavePreservesPriorGenerationAsBackup(t *testing.T) {
	m, root := setupTestMetadataStore(t)
	vmk := testVMK(t)
	defer vmk.Zeroize()

	first := NewIndex()
	first.Entries["v1.txt"] = FileEntry{FileID: "1"}
	if err := m.Save(vmk, first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := NewIndex()
	second.Entries["v2.txt"] = FileEntry{FileID: "2"}
	if err := m.Save(vmk, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "metadata.bak")); err != nil {
		t.Fatalf("metadata.bak not written: %v", err)
	}

	var bak Index
	bakStore := &MetadataStore{root: root}
	data, err := os.ReadFile(bakStore.bakPath())
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	decoded, err := decryptIndex(vmk, data)
	if err != nil {
		t.Fatalf("decrypt backup: %v", err)
	}
	bak = *decoded
	if _, ok := bak.Entries["v1.txt"]; !ok {
		t.Error("backup does not contain the prior generation's entry")
	}
}

func TestMetadataRestoreFromBackup(t *testing.T) {
	m, _ := setupTestMetadataStore(t)
	vmk := testVMK(t)
	defer vmk.Zeroize()

	first := NewIndex()
	first.Entries["v1.txt"] = FileEntry{FileID: "1"}
	if err := m.Save(vmk, first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second := NewIndex()
	second.Entries["v2.txt"] = FileEntry{FileID: "2"}
	if err := m.Save(vmk, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if err := m.RestoreFromBackup(); err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}

	got, err := m.Load(vmk)
	if err != nil {
		t.Fatalf("Load after restore failed: %v", err)
	}
	if _, ok := got.Entries["v1.txt"]; !ok {
		t.Error("restored index does not contain the prior generation's entry")
	}
}
