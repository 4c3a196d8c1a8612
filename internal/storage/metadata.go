package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/filelock"
)

// FileEntry is one row of the metadata index: filename -> per-file
// record metadata.
type FileEntry struct {
	FileID       string    `json:"file_id"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	Category     string    `json:"category,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Index is the decrypted metadata index: a sorted mapping from logical
// filename to FileEntry.
type Index struct {
	Entries map[string]FileEntry `json:"entries"`
}

func NewIndex() *Index {
	return &Index{Entries: make(map[string]FileEntry)}
}

// Names returns filenames in sorted order, for stable `list` output.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.Entries))
	for n := range idx.Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MetadataStore persists the encrypted index under a vault root (real or
// decoy), at "<root>/metadata" with a one-generation backup at
// "<root>/metadata.bak".
type MetadataStore struct {
	root string
}

func NewMetadataStore(root string) *MetadataStore {
	return &MetadataStore{root: root}
}

func (m *MetadataStore) path() string    { return filepath.Join(m.root, "metadata") }
func (m *MetadataStore) bakPath() string { return filepath.Join(m.root, "metadata.bak") }

// Load decrypts and parses the index under vmk. A missing metadata file
// is not an error: it means an empty, freshly-opened vault.
func (m *MetadataStore) Load(vmk *crypto.SecretBuffer) (*Index, error) {
	blob, err := os.ReadFile(m.path())
	if err != nil {
		if os.IsNotExist(err) {
			return NewIndex(), nil
		}
		return nil, fmt.Errorf("storage: read metadata: %w", err)
	}
	return decryptIndex(vmk, blob)
}

func decryptIndex(vmk *crypto.SecretBuffer, blob []byte) (*Index, error) {
	var plaintext []byte
	err := vmk.AsSlice(func(k []byte) error {
		p, err := crypto.Decrypt(k, blob, []byte(crypto.AADMeta))
		if err != nil {
			return err
		}
		plaintext = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	defer crypto.ClearBytes(plaintext)

	var idx Index
	if err := json.Unmarshal(plaintext, &idx); err != nil {
		return nil, fmt.Errorf("storage: unmarshal metadata: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]FileEntry)
	}
	return &idx, nil
}

// Save performs a copy-on-write update: build the new blob in memory,
// write metadata.tmp, fsync, rename onto
// metadata. The previous generation is preserved at metadata.bak (one
// generation of retention) before being overwritten by the new commit.
func (m *MetadataStore) Save(vmk *crypto.SecretBuffer, idx *Index) error {
	plaintext, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	defer crypto.ClearBytes(plaintext)

	var blob []byte
	err = vmk.AsSlice(func(k []byte) error {
		b, err := crypto.Encrypt(k, plaintext, []byte(crypto.AADMeta))
		if err != nil {
			return err
		}
		blob = b
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: seal metadata: %w", err)
	}

	if err := os.MkdirAll(m.root, 0700); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", m.root, err)
	}
	lock, err := filelock.Acquire(m.path())
	if err != nil {
		return fmt.Errorf("storage: acquire metadata lock: %w", err)
	}
	defer lock.Release()

	// Preserve prior generation before the rename replaces it. Best
	// effort: if no prior metadata exists yet, there is nothing to
	// preserve.
	if prior, err := os.ReadFile(m.path()); err == nil {
		_, _ = writeFileAtomic(m.bakPath(), prior, 0600)
	}

	if _, err := writeFileAtomic(m.path(), blob, 0600); err != nil {
		return err
	}
	return nil
}

// RestoreFromBackup loads metadata.bak and promotes it to metadata, for
// manual recovery.
func (m *MetadataStore) RestoreFromBackup() error {
	data, err := os.ReadFile(m.bakPath())
	if err != nil {
		return fmt.Errorf("storage: read metadata backup: %w", err)
	}
	_, err = writeFileAtomic(m.path(), data, 0600)
	return err
}
