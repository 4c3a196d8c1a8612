// Package vault implements the vault orchestrator and the decoy
// vault facade: the single entry point that wires the KDF, AEAD,
// key-hierarchy, triage, config-store, attempt-limiter, file-codec and
// metadata-store packages together into the setup/open/list/get/put/
// delete/rename/close operation set.
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ghostvault/ghostvault/internal/configstore"
	"github.com/ghostvault/ghostvault/internal/crypto"
	"github.com/ghostvault/ghostvault/internal/limiter"
	"github.com/ghostvault/ghostvault/internal/observer"
	"github.com/ghostvault/ghostvault/internal/storage"
	"github.com/ghostvault/ghostvault/internal/triage"
)

// Options configures a Service. New applies a default to each numeric
// and duration field left zero; Root, DecoyRoot and AttemptsPath have
// no default.
type Options struct {
	Root           string
	DecoyRoot      string
	AttemptsPath   string
	MaxAttempts    uint32
	LockoutSeconds int64
	FloorDelay     time.Duration
	JitterDelay    time.Duration
	KdfTargetMS    uint32
	KdfMemCapMB    uint32
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = limiter.DefaultMaxAttempts
	}
	if o.LockoutSeconds == 0 {
		o.LockoutSeconds = limiter.DefaultLockoutSeconds
	}
	if o.FloorDelay == 0 {
		o.FloorDelay = 900 * time.Millisecond
	}
	if o.JitterDelay == 0 {
		o.JitterDelay = 300 * time.Millisecond
	}
	if o.KdfTargetMS == 0 {
		o.KdfTargetMS = 500
	}
	if o.KdfMemCapMB == 0 {
		o.KdfMemCapMB = 128
	}
	return o
}

// PanicExecutor is the seam Open hands control to on a Panic
// classification. internal/panicexec implements it; vault does not
// import that package directly so panic's irreversible phases stay
// decoupled from ordinary vault operations.
type PanicExecutor interface {
	Execute(dryRun bool) error
}

// Service is the vault orchestrator: it holds no secret state except the
// currently-seated VMK or DVMK (never both), and only while the vault is
// open.
type Service struct {
	opts    Options
	config  *configstore.Store
	limiter *limiter.Limiter

	realCodec *storage.FileCodec
	realMeta  *storage.MetadataStore
	decoyCodec *storage.FileCodec
	decoyMeta  *storage.MetadataStore

	panicExec PanicExecutor
	observers []observer.Observer

	mu   sync.Mutex
	mode observer.Mode
	vmk  *crypto.SecretBuffer
	dvmk *crypto.SecretBuffer
}

// New builds a Service. It does not touch disk.
func New(opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		opts:       opts,
		config:     configstore.New(opts.Root),
		limiter:    limiter.New(opts.AttemptsPath, opts.MaxAttempts, opts.LockoutSeconds),
		realCodec:  storage.NewFileCodec(opts.Root),
		realMeta:   storage.NewMetadataStore(opts.Root),
		decoyCodec: storage.NewFileCodec(opts.DecoyRoot),
		decoyMeta:  storage.NewMetadataStore(opts.DecoyRoot),
		mode:       observer.ModeNone,
	}
}

// RegisterObserver attaches a secret-blind external collaborator.
func (s *Service) RegisterObserver(o observer.Observer) {
	s.observers = append(s.observers, o)
}

// SetPanicExecutor wires the panic phase sequence. Open requires one
// to be set before a Panic classification can be serviced; its absence
// is a configuration error, not a silent no-op,
// since a panic password that does nothing defeats the entire threat
// model.
func (s *Service) SetPanicExecutor(p PanicExecutor) {
	s.panicExec = p
}

// Status reports the config store's state without unlocking anything,
// for `ghostvault doctor` and for the CLI deciding whether to
// suggest `setup`.
func (s *Service) Status() configstore.State {
	return s.config.Status()
}

// Setup performs the one-time three-password bootstrap: benchmark KDF
// cost, derive the key hierarchy, and persist the config record plus
// its backup. It refuses to run over an existing valid config; callers
// must explicitly remove one first.
func (s *Service) Setup(masterPassword, panicPassword, decoyPassword []byte) error {
	if s.config.Status() == configstore.Valid {
		return fmt.Errorf("vault: %w", configstore.ErrAlreadyExist)
	}

	params := crypto.Benchmark(s.opts.KdfTargetMS, s.opts.KdfMemCapMB)
	setup, vmk, dvmk, err := crypto.Setup(params, masterPassword, panicPassword, decoyPassword)
	if err != nil {
		return err
	}
	defer vmk.Zeroize()
	defer dvmk.Zeroize()

	rec := configstore.Record{
		Version:   1,
		Params:    setup.Params,
		VerifierM: setup.VerifierM,
		WrappedM:  setup.WrappedM,
		VerifierP: setup.VerifierP,
		VerifierD: setup.VerifierD,
		WrappedD:  setup.WrappedD,
	}
	if err := s.config.SaveAtomic(rec); err != nil {
		return IoFailure(err.Error())
	}
	if err := s.config.Backup(); err != nil {
		return IoFailure(err.Error())
	}

	// Seed the decoy vault with plausible filler immediately, so the
	// decoy password is convincing on the very first open, not only
	// after a refresh.
	if err := seedFiller(dvmk, s.decoyCodec, s.decoyMeta, 6); err != nil {
		return IoFailure(err.Error())
	}
	return nil
}

// Open classifies password and routes to the matching behavior:
//
//   - Master: seats the VMK, the vault is now writable.
//   - Decoy: seats the DVMK against the decoy root, refreshes filler.
//   - Panic: hands off to the registered PanicExecutor and returns
//     PanicCompleted. The caller MUST treat this as terminal and exit
//     the process immediately, performing no further vault operations.
//     That guarantee is enforced at the process-exit layer, not inside
//     this call, so that Execute's own errors are still observable to
//     the caller for diagnostics.
//   - Invalid: records the failure against the attempt limiter.
func (s *Service) Open(password []byte) error {
	if err := s.limiter.Check(time.Now()); err != nil {
		if locked, ok := err.(*limiter.ErrLocked); ok {
			return AuthLocked(int(locked.RemainingSeconds))
		}
		return IoFailure(err.Error())
	}

	rec, state, err := s.config.Load()
	if err != nil || state == configstore.CorruptedFatal {
		return ConfigCorrupted(true, "config failed to load and no valid backup exists")
	}
	if state == configstore.Missing {
		return ConfigMissing()
	}

	cfg := triage.Config{
		Params: rec.Params,
		Verifiers: triage.Verifiers{
			Master: rec.VerifierM,
			Panic:  rec.VerifierP,
			Decoy:  rec.VerifierD,
		},
		FloorDelay:  s.opts.FloorDelay,
		JitterDelay: s.opts.JitterDelay,
	}
	result, kek := triage.Classify(password, cfg)

	switch result {
	case triage.Master:
		vmk, err := crypto.UnwrapMasterKey(kek, rec.WrappedM, []byte(crypto.AADVMKWrap))
		kek.Zeroize()
		if err != nil {
			_ = s.limiter.RecordFailure(time.Now())
			return AuthInvalid("vmk unwrap failed despite verifier match")
		}
		s.seat(observer.ModeMaster, vmk, nil)
		_ = s.limiter.RecordSuccess()
		s.fireObservers(func(o observer.Observer, ev observer.Event) error { return o.OnPreUnlock(ev) })
		if state == configstore.CorruptedRecoverable {
			return ConfigCorrupted(false, "restored from config.bak")
		}
		return nil

	case triage.Decoy:
		dvmk, err := crypto.UnwrapMasterKey(kek, rec.WrappedD, []byte(crypto.AADDVMKWrap))
		kek.Zeroize()
		if err != nil {
			_ = s.limiter.RecordFailure(time.Now())
			return AuthInvalid("dvmk unwrap failed despite verifier match")
		}
		if err := refreshFiller(dvmk, s.decoyCodec, s.decoyMeta); err != nil {
			dvmk.Zeroize()
			return IoFailure(err.Error())
		}
		s.seat(observer.ModeDecoy, nil, dvmk)
		_ = s.limiter.RecordSuccess()
		s.fireObservers(func(o observer.Observer, ev observer.Event) error { return o.OnPreUnlock(ev) })
		return nil

	case triage.Panic:
		_ = s.limiter.RecordSuccess()
		s.fireObservers(func(o observer.Observer, ev observer.Event) error { return o.OnPrePanic(ev) })
		if s.panicExec == nil {
			return IoFailure("panic password matched but no panic executor is wired")
		}
		if err := s.panicExec.Execute(false); err != nil {
			return IoFailure(fmt.Sprintf("panic execution error: %v", err))
		}
		return PanicCompleted()

	default:
		_ = s.limiter.RecordFailure(time.Now())
		return AuthInvalid("no password slot matched")
	}
}

func (s *Service) seat(mode observer.Mode, vmk, dvmk *crypto.SecretBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.vmk = vmk
	s.dvmk = dvmk
}

// Close zeroizes whichever key is seated and returns the service to the
// locked state. Safe to call when already locked.
func (s *Service) Close() error {
	s.mu.Lock()
	mode := s.mode
	vmk, dvmk := s.vmk, s.dvmk
	s.mode = observer.ModeNone
	s.vmk, s.dvmk = nil, nil
	s.mu.Unlock()

	if vmk != nil {
		vmk.Zeroize()
	}
	if dvmk != nil {
		dvmk.Zeroize()
	}
	if mode != observer.ModeNone {
		s.fireObservers(func(o observer.Observer, ev observer.Event) error { return o.OnPostLock(ev) })
	}
	return nil
}

// Mode reports the currently-seated mode, for CLI prompts (never
// exposes which password was used beyond this tag).
func (s *Service) Mode() observer.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Service) active() (key *crypto.SecretBuffer, codec *storage.FileCodec, meta *storage.MetadataStore, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case observer.ModeMaster:
		return s.vmk, s.realCodec, s.realMeta, nil
	case observer.ModeDecoy:
		return s.dvmk, s.decoyCodec, s.decoyMeta, nil
	default:
		return nil, nil, nil, fmt.Errorf("vault: not open")
	}
}

// List returns filenames in sorted order, alongside their metadata.
// ListEntry pairs a logical filename with its metadata row.
type ListEntry struct {
	Name string
	storage.FileEntry
}

func (s *Service) List() ([]ListEntry, error) {
	key, _, meta, err := s.active()
	if err != nil {
		return nil, err
	}
	idx, err := meta.Load(key)
	if err != nil {
		return nil, err
	}
	names := idx.Names()
	out := make([]ListEntry, 0, len(names))
	for _, n := range names {
		out = append(out, ListEntry{Name: n, FileEntry: idx.Entries[n]})
	}
	return out, nil
}

// Get decrypts and returns the named file's contents. A storage.ErrTampered
// result means the record failed authentication and was quarantined; the
// caller surfaces vault.Tampered(id).
func (s *Service) Get(name string) ([]byte, error) {
	key, codec, meta, err := s.active()
	if err != nil {
		return nil, err
	}
	idx, err := meta.Load(key)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Entries[name]
	if !ok {
		return nil, fmt.Errorf("vault: %q not found", name)
	}
	id, err := storage.ParseFileID(entry.FileID)
	if err != nil {
		return nil, IoFailure(err.Error())
	}
	plaintext, err := codec.Get(key, id)
	if err != nil {
		return nil, Tampered(entry.FileID)
	}
	return plaintext, nil
}

// Put writes (or overwrites) the named file's contents.
func (s *Service) Put(name string, plaintext []byte, category string) error {
	key, codec, meta, err := s.active()
	if err != nil {
		return err
	}
	idx, err := meta.Load(key)
	if err != nil {
		return err
	}

	if prior, exists := idx.Entries[name]; exists {
		if priorID, err := storage.ParseFileID(prior.FileID); err == nil {
			_ = codec.Delete(priorID)
		}
	}

	id, err := codec.Put(key, plaintext)
	if err != nil {
		return IoFailure(err.Error())
	}
	entry := fileEntryFor(id, plaintext, category)
	if exists, ok := idx.Entries[name]; ok {
		entry.CreatedAt = exists.CreatedAt
	}
	idx.Entries[name] = entry
	if err := meta.Save(key, idx); err != nil {
		return IoFailure(err.Error())
	}
	return nil
}

// Delete removes the named file: best-effort overwrite then unlink of
// the underlying record, and removal from the metadata index.
func (s *Service) Delete(name string) error {
	key, codec, meta, err := s.active()
	if err != nil {
		return err
	}
	idx, err := meta.Load(key)
	if err != nil {
		return err
	}
	entry, ok := idx.Entries[name]
	if !ok {
		return fmt.Errorf("vault: %q not found", name)
	}
	id, err := storage.ParseFileID(entry.FileID)
	if err != nil {
		return IoFailure(err.Error())
	}
	if err := codec.Delete(id); err != nil {
		return IoFailure(err.Error())
	}
	delete(idx.Entries, name)
	return meta.Save(key, idx)
}

// Rename changes a file's logical name without touching its ciphertext.
func (s *Service) Rename(oldName, newName string) error {
	key, _, meta, err := s.active()
	if err != nil {
		return err
	}
	idx, err := meta.Load(key)
	if err != nil {
		return err
	}
	entry, ok := idx.Entries[oldName]
	if !ok {
		return fmt.Errorf("vault: %q not found", oldName)
	}
	if _, exists := idx.Entries[newName]; exists {
		return fmt.Errorf("vault: %q already exists", newName)
	}
	delete(idx.Entries, oldName)
	idx.Entries[newName] = entry
	return meta.Save(key, idx)
}

func (s *Service) fireObservers(call func(observer.Observer, observer.Event) error) {
	if len(s.observers) == 0 {
		return
	}
	ev := observer.Event{Timestamp: time.Now(), Mode: s.Mode()}
	if names, err := s.List(); err == nil {
		ev.FileCount = len(names)
	}
	for _, o := range s.observers {
		// Best-effort: an observer's error never blocks or reverses a
		// security-critical transition.
		_ = call(o, ev)
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
