// Package storage implements the per-file encryption pipeline and
// the encrypted metadata index.
package storage

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ghostvault/ghostvault/internal/crypto"
)

var fileMagic = [4]byte{'G', 'V', 'F', 'L'}

const fileHeaderVersion = 1

// ErrTampered is returned by Get when the file body or its wrapped DEK
// fails AEAD authentication. The record is quarantined, not deleted.
var ErrTampered = errors.New("storage: file tampered")

// FileID is the random 128-bit per-file identifier.
type FileID [16]byte

func NewFileID() (FileID, error) {
	var id FileID
	if _, err := rand.Read(id[:]); err != nil {
		return FileID{}, err
	}
	return id, nil
}

func (id FileID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// ParseFileID parses the hex string produced by String.
func ParseFileID(s string) (FileID, error) {
	var id FileID
	if len(s) != 32 {
		return id, fmt.Errorf("storage: bad file id length %d", len(s))
	}
	for i := 0; i < 16; i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return FileID{}, err
		}
		id[i] = b
	}
	return id, nil
}

// FileCodec reads and writes per-file records under root/files (or
// root/decoys/files for the decoy facade, the caller picks the root).
type FileCodec struct {
	filesDir      string
	quarantineDir string
}

func NewFileCodec(root string) *FileCodec {
	return &FileCodec{
		filesDir:      filepath.Join(root, "files"),
		quarantineDir: filepath.Join(root, "quarantine"),
	}
}

func (c *FileCodec) pathFor(id FileID) string {
	return filepath.Join(c.filesDir, id.String())
}

// Put encrypts plaintext under a fresh per-file DEK wrapped with the
// active VMK, and writes it atomically:
//  1. fresh file_id + DEK
//  2. wrap DEK under vmk with aad "dek:"+file_id
//  3. seal plaintext under DEK with aad "file:"+file_id
//  4. write files/<file_id>.tmp, fsync, rename to files/<file_id>
//  5. caller updates the metadata index (see metadata.go)
//  6. DEK is zeroized before returning
func (c *FileCodec) Put(vmk *crypto.SecretBuffer, plaintext []byte) (FileID, error) {
	id, err := NewFileID()
	if err != nil {
		return FileID{}, err
	}
	dek, err := crypto.GenerateMasterKey()
	if err != nil {
		return FileID{}, err
	}
	defer dek.Zeroize()

	wrappedDEK, err := crypto.WrapMasterKey(vmk, dek, crypto.DEKAAD(id))
	if err != nil {
		return FileID{}, fmt.Errorf("storage: wrap dek: %w", err)
	}

	var body []byte
	err = dek.AsSlice(func(k []byte) error {
		b, err := crypto.Encrypt(k, plaintext, crypto.FileAAD(id))
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return FileID{}, fmt.Errorf("storage: seal body: %w", err)
	}

	record := encodeFileRecord(id, wrappedDEK, body)
	if err := os.MkdirAll(c.filesDir, 0700); err != nil {
		return FileID{}, err
	}
	cleanupOrphanedTempFiles(c.filesDir)
	if _, err := writeFileAtomic(c.pathFor(id), record, 0600); err != nil {
		return FileID{}, err
	}
	return id, nil
}

// Get reads and authenticates a file. Any AEAD failure, on the wrapped
// DEK or on the body, results in quarantine and ErrTampered; there is no
// partial-plaintext return path.
func (c *FileCodec) Get(vmk *crypto.SecretBuffer, id FileID) ([]byte, error) {
	raw, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		return nil, fmt.Errorf("storage: read file %s: %w", id, err)
	}
	gotID, wrappedDEK, body, err := decodeFileRecord(raw)
	if err != nil {
		c.quarantine(id, raw, "decode: "+err.Error())
		return nil, ErrTampered
	}
	if gotID != id {
		c.quarantine(id, raw, "file id mismatch")
		return nil, ErrTampered
	}

	dek, err := crypto.UnwrapMasterKey(vmk, wrappedDEK, crypto.DEKAAD(id))
	if err != nil {
		c.quarantine(id, raw, "dek unwrap failed")
		return nil, ErrTampered
	}
	defer dek.Zeroize()

	var plaintext []byte
	err = dek.AsSlice(func(k []byte) error {
		p, err := crypto.Decrypt(k, body, crypto.FileAAD(id))
		if err != nil {
			return err
		}
		plaintext = p
		return nil
	})
	if err != nil {
		c.quarantine(id, raw, "body auth failed")
		return nil, ErrTampered
	}
	return plaintext, nil
}

// Delete overwrites the file with random bytes (best-effort; of limited
// value on journaling/COW/SSD media) and unlinks it.
func (c *FileCodec) Delete(id FileID) error {
	path := c.pathFor(id)
	overwriteWithRandom(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// quarantine preserves a tampered record for forensics instead of
// deleting it outright.
func (c *FileCodec) quarantine(id FileID, raw []byte, reason string) {
	if err := os.MkdirAll(c.quarantineDir, 0700); err != nil {
		return
	}
	dest := filepath.Join(c.quarantineDir, id.String())
	_, _ = writeFileAtomic(dest, raw, 0600)
	idxPath := filepath.Join(c.quarantineDir, "index")
	line := fmt.Sprintf("%s\t%d\t%s\n", id, time.Now().Unix(), reason)
	f, err := os.OpenFile(idxPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line)
}

// overwriteWithRandom performs a small number of random-bytes passes over
// an existing file before unlink. Unreliable on SSD, journaling, and
// copy-on-write filesystems. This is defense in depth, not the primary
// erasure guarantee. The primary guarantee is cryptographic erasure
// (internal/panicexec).
func overwriteWithRandom(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	size := info.Size()
	buf := make([]byte, 64*1024)
	const passes = 3
	for p := 0; p < passes; p++ {
		if _, err := f.Seek(0, 0); err != nil {
			return
		}
		remaining := size
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			if _, err := rand.Read(buf[:n]); err != nil {
				return
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return
			}
			remaining -= n
		}
		_ = f.Sync()
	}
}

// File record framing:
//
//	magic(4) | version(1) | file_id(16) | wrapped_dek_len(4) | wrapped_dek |
//	body (nonce || ciphertext || tag, from crypto.Encrypt)
//
// wrapped_dek is itself nonce || ciphertext || tag from crypto.WrapMasterKey,
// so this framing carries magic, version, file_id, nonce, wrapped_dek,
// ciphertext, and tag without a separate nonce/tag field, since
// crypto.Encrypt already binds them together per its documented
// contract.
func encodeFileRecord(id FileID, wrappedDEK crypto.WrappedKey, body []byte) []byte {
	out := make([]byte, 0, 4+1+16+4+len(wrappedDEK)+len(body))
	out = append(out, fileMagic[:]...)
	out = append(out, fileHeaderVersion)
	out = append(out, id[:]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(wrappedDEK)))
	out = append(out, u32[:]...)
	out = append(out, wrappedDEK...)
	out = append(out, body...)
	return out
}

func decodeFileRecord(data []byte) (FileID, crypto.WrappedKey, []byte, error) {
	if len(data) < 4+1+16+4 {
		return FileID{}, nil, nil, errors.New("truncated header")
	}
	if data[0] != fileMagic[0] || data[1] != fileMagic[1] || data[2] != fileMagic[2] || data[3] != fileMagic[3] {
		return FileID{}, nil, nil, errors.New("bad magic")
	}
	off := 4
	off++ // version, not yet branched on
	var id FileID
	copy(id[:], data[off:off+16])
	off += 16
	wLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+wLen {
		return FileID{}, nil, nil, errors.New("truncated wrapped dek")
	}
	wrapped := crypto.WrappedKey(append([]byte(nil), data[off:off+wLen]...))
	off += wLen
	body := append([]byte(nil), data[off:]...)
	return id, wrapped, body, nil
}
