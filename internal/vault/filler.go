package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/storage"
)

// fillerNames and fillerWords back a small, self-contained filler
// generator for the decoy vault, producing non-empty files with
// plausible names and realistic timestamps so `setup` and `open` in
// decoy mode always have something believable to seed and refresh.
var fillerNames = []string{
	"notes.txt", "todo.txt", "receipts.txt", "ideas.txt", "contacts.txt",
	"travel-plans.txt", "recipe-book.txt", "reading-list.txt", "budget.txt",
	"meeting-notes.txt",
}

var fillerWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
	"elit", "sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore",
	"et", "dolore", "magna", "aliqua", "quis", "nostrud", "exercitation",
}

// seedFiller writes n plausible filler files into the decoy vault rooted
// at facade, through the same FileCodec + MetadataStore pair a real
// vault uses, so a decoy file is byte-for-byte indistinguishable on disk
// from a real one.
func seedFiller(dvmk *crypto.SecretBuffer, codec *storage.FileCodec, meta *storage.MetadataStore, n int) error {
	idx, err := meta.Load(dvmk)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name := fillerNames[i%len(fillerNames)]
		if _, exists := idx.Entries[name]; exists {
			continue
		}
		body, err := randomFillerText()
		if err != nil {
			return err
		}
		id, err := codec.Put(dvmk, body)
		if err != nil {
			return err
		}
		entry := fillerEntryFor(id, body, "")
		idx.Entries[name] = entry
	}
	return meta.Save(dvmk, idx)
}

// refreshFiller sets ModifiedAt to the current time on one randomly
// chosen filler entry, so that an adversary re-entering the same decoy
// password on a later day sees a plausibly-evolving vault rather than a
// static snapshot. File contents are not rewritten and no file is added,
// except that a decoy index with no entries is seeded with four filler
// files.
func refreshFiller(dvmk *crypto.SecretBuffer, codec *storage.FileCodec, meta *storage.MetadataStore) error {
	idx, err := meta.Load(dvmk)
	if err != nil {
		return err
	}
	if len(idx.Entries) == 0 {
		return seedFiller(dvmk, codec, meta, 4)
	}

	touch, err := randomInt(len(idx.Entries))
	if err != nil {
		return err
	}
	i := 0
	for name, entry := range idx.Entries {
		if i == touch {
			entry.ModifiedAt = time.Now()
			idx.Entries[name] = entry
			break
		}
		i++
	}
	return meta.Save(dvmk, idx)
}

// fileEntryFor builds the metadata row for a real write: CreatedAt and
// ModifiedAt are the actual current time.
func fileEntryFor(id storage.FileID, body []byte, category string) storage.FileEntry {
	now := time.Now()
	return storage.FileEntry{
		FileID:     id.String(),
		Size:       int64(len(body)),
		SHA256:     sha256Hex(body),
		Category:   category,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// fillerEntryFor is fileEntryFor's decoy-only counterpart: it back-dates
// the timestamps by up to 180 days so seeded filler looks like it has
// been accumulating for a while, rather than all appearing at once at
// setup time.
func fillerEntryFor(id storage.FileID, body []byte, category string) storage.FileEntry {
	entry := fileEntryFor(id, body, category)
	aged := time.Now().Add(-randomPastDuration())
	entry.CreatedAt = aged
	entry.ModifiedAt = aged
	return entry
}

func randomFillerText() ([]byte, error) {
	n, err := randomInt(40)
	if err != nil {
		return nil, err
	}
	n += 20
	out := make([]byte, 0, n*7)
	for i := 0; i < n; i++ {
		idx, err := randomInt(len(fillerWords))
		if err != nil {
			return nil, err
		}
		out = append(out, []byte(fillerWords[idx])...)
		out = append(out, ' ')
		if (i+1)%12 == 0 {
			out = append(out, '\n')
		}
	}
	return out, nil
}

func randomInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("vault: random int: %w", err)
	}
	return int(v.Int64()), nil
}

func randomPastDuration() time.Duration {
	days, _ := randomInt(180)
	return time.Duration(days) * 24 * time.Hour
}
