// Package configstore implements the versioned, CRC-guarded on-disk
// config record: KDF parameters plus the three
// password slots (verifier-only for panic, verifier+wrapped-key for
// master and decoy).
package configstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/filelock"
)

var magic = [4]byte{'G', 'V', 'L', 'T'}

const recordVersion = 1

// State is the outcome of Load/validate: missing, valid, recoverably
// corrupted (restored from backup), or fatally corrupted (both the
// primary and backup records failed validation).
type State int

const (
	Missing State = iota
	Valid
	CorruptedRecoverable
	CorruptedFatal
)

// Record is the decoded config record.
type Record struct {
	Version   uint8
	Params    crypto.Params
	VerifierM crypto.Verifier
	WrappedM  crypto.WrappedKey
	VerifierP crypto.Verifier
	VerifierD crypto.Verifier
	WrappedD  crypto.WrappedKey
}

var (
	ErrTruncated    = errors.New("configstore: record truncated")
	ErrBadMagic     = errors.New("configstore: bad magic")
	ErrCRCMismatch  = errors.New("configstore: crc mismatch")
	ErrFatal        = errors.New("configstore: corrupted and unrecoverable")
	ErrAlreadyExist = errors.New("configstore: config already exists")
)

// Store owns the three file paths (config, config.bak, .salt) under a
// vault root. SaveAtomic and Recover, which rewrite config, hold an
// advisory lock on it while they write.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) configPath() string { return filepath.Join(s.root, "config") }
func (s *Store) backupPath() string { return filepath.Join(s.root, "config.bak") }
func (s *Store) saltPath() string   { return filepath.Join(s.root, ".salt") }

// Encode serializes a Record into its on-disk binary form:
//
//	magic | version | kdf_tag(1) | salt_len(2) | salt | kdf_cost_fields |
//	V_M(32) | W_M_len(4) | W_M | V_P(32) | V_D(32) | W_D_len(4) | W_D | CRC32
func Encode(r Record) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(r.Version)
	buf.WriteByte(r.Params.Algorithm)

	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(r.Params.Salt)))
	buf.Write(u16[:])
	buf.Write(r.Params.Salt)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], r.Params.TimeCost)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], r.Params.MemoryKB)
	buf.Write(u32[:])
	buf.WriteByte(r.Params.Parallelism)
	binary.LittleEndian.PutUint32(u32[:], r.Params.Iterations)
	buf.Write(u32[:])

	buf.Write(r.VerifierM[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(r.WrappedM)))
	buf.Write(u32[:])
	buf.Write(r.WrappedM)

	buf.Write(r.VerifierP[:])
	buf.Write(r.VerifierD[:])

	binary.LittleEndian.PutUint32(u32[:], uint32(len(r.WrappedD)))
	buf.Write(u32[:])
	buf.Write(r.WrappedD)

	sum := crc32.ChecksumIEEE(buf.Bytes())
	binary.LittleEndian.PutUint32(u32[:], sum)
	buf.Write(u32[:])

	return buf.Bytes()
}

// Decode parses the bytes written by Encode, validating the CRC and
// magic before trusting any field.
func Decode(data []byte) (Record, error) {
	if len(data) < 4+1+1+2 {
		return Record{}, ErrTruncated
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return Record{}, ErrBadMagic
	}
	if len(data) < 4 {
		return Record{}, ErrTruncated
	}
	body, crcBytes := data[:len(data)-4], data[len(data)-4:]
	want := binary.LittleEndian.Uint32(crcBytes)
	got := crc32.ChecksumIEEE(body)
	if want != got {
		return Record{}, ErrCRCMismatch
	}

	r := Record{}
	off := 4
	r.Version = data[off]
	off++
	r.Params.Algorithm = data[off]
	off++

	if len(data) < off+2 {
		return Record{}, ErrTruncated
	}
	saltLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
	off += 2
	if len(data) < off+saltLen {
		return Record{}, ErrTruncated
	}
	r.Params.Salt = append([]byte(nil), data[off:off+saltLen]...)
	off += saltLen

	if len(data) < off+4+4+1+4 {
		return Record{}, ErrTruncated
	}
	r.Params.TimeCost = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	r.Params.MemoryKB = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	r.Params.Parallelism = data[off]
	off++
	r.Params.Iterations = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	if len(data) < off+32 {
		return Record{}, ErrTruncated
	}
	copy(r.VerifierM[:], data[off:off+32])
	off += 32

	if len(data) < off+4 {
		return Record{}, ErrTruncated
	}
	wLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+wLen {
		return Record{}, ErrTruncated
	}
	r.WrappedM = append(crypto.WrappedKey(nil), data[off:off+wLen]...)
	off += wLen

	if len(data) < off+32+32 {
		return Record{}, ErrTruncated
	}
	copy(r.VerifierP[:], data[off:off+32])
	off += 32
	copy(r.VerifierD[:], data[off:off+32])
	off += 32

	if len(data) < off+4 {
		return Record{}, ErrTruncated
	}
	dwLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+dwLen {
		return Record{}, ErrTruncated
	}
	r.WrappedD = append(crypto.WrappedKey(nil), data[off:off+dwLen]...)

	return r, nil
}

// Status reports which of Missing/Valid/CorruptedRecoverable/
// CorruptedFatal the store is currently in, without mutating anything.
func (s *Store) Status() State {
	_, _, state := s.load()
	return state
}

// Load reads and validates the config record, automatically falling back
// to config.bak exactly once on CRC failure or truncation. If the
// backup also fails validation the corruption is surfaced as fatal. It
// never rewrites the primary file itself: a successful
// restore-from-backup is surfaced as CorruptedRecoverable so the caller
// can decide whether to persist the recovered copy via Recover.
func (s *Store) Load() (Record, State, error) {
	rec, _, state := s.load()
	switch state {
	case Missing:
		return Record{}, Missing, nil
	case Valid, CorruptedRecoverable:
		return rec, state, nil
	default:
		return Record{}, CorruptedFatal, ErrFatal
	}
}

func (s *Store) load() (Record, []byte, State) {
	primary, primaryErr := os.ReadFile(s.configPath())
	if primaryErr != nil {
		if os.IsNotExist(primaryErr) {
			return Record{}, nil, Missing
		}
		return Record{}, nil, CorruptedFatal
	}
	rec, err := Decode(primary)
	if err == nil {
		return rec, primary, Valid
	}

	backup, backupErr := os.ReadFile(s.backupPath())
	if backupErr != nil {
		return Record{}, nil, CorruptedFatal
	}
	rec, err = Decode(backup)
	if err != nil {
		return Record{}, nil, CorruptedFatal
	}
	return rec, backup, CorruptedRecoverable
}

// SaveAtomic writes rec to config.tmp, fsyncs it, and renames it over
// config, the standard write-tmp/fsync/rename atomicity pattern used
// throughout this vault. It does not itself create a backup; call
// Backup afterward on success to copy the new config to config.bak.
func (s *Store) SaveAtomic(rec Record) error {
	lock, err := filelock.Acquire(s.configPath())
	if err != nil {
		return fmt.Errorf("configstore: acquire lock: %w", err)
	}
	defer lock.Release()

	if err := os.MkdirAll(s.root, 0700); err != nil {
		return err
	}
	data := Encode(rec)
	tmp := s.configPath() + ".tmp"
	if err := writeFileFsync(tmp, data); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.configPath()); err != nil {
		return fmt.Errorf("configstore: rename: %w", err)
	}
	return writeFileFsync(s.saltPath(), rec.Params.Salt)
}

// Backup copies the current config over config.bak. Call this after
// every successful SaveAtomic.
func (s *Store) Backup() error {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return fmt.Errorf("configstore: read for backup: %w", err)
	}
	return writeFileFsync(s.backupPath(), data)
}

// Recover forces a restore of config.bak over config. Used by the doctor
// and by explicit operator action; Load() already does this
// automatically and in-memory on read, this additionally persists it.
func (s *Store) Recover() error {
	lock, err := filelock.Acquire(s.configPath())
	if err != nil {
		return fmt.Errorf("configstore: acquire lock: %w", err)
	}
	defer lock.Release()

	backup, err := os.ReadFile(s.backupPath())
	if err != nil {
		return fmt.Errorf("configstore: read backup: %w", err)
	}
	if _, err := Decode(backup); err != nil {
		return fmt.Errorf("%w: backup also invalid: %v", ErrFatal, err)
	}
	tmp := s.configPath() + ".tmp"
	if err := writeFileFsync(tmp, backup); err != nil {
		return err
	}
	return os.Rename(tmp, s.configPath())
}

func writeFileFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("configstore: open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("configstore: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("configstore: fsync %s: %w", path, err)
	}
	return f.Close()
}

// Root returns the vault root directory this store is rooted at.
func (s *Store) Root() string { return s.root }
