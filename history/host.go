package history

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Host wires the in-memory Backend to the disk layer (master DB,
// per-object files, catalog) and to the surrounding process's logger,
// standing in for the module-registration hooks the original C source
// wires through the host's module loader (MOD_TEST/MOD_INIT/MOD_LOAD).
// There is no loader here, so a Host is just a struct the embedding
// program constructs and calls methods on directly.
type Host struct {
	cfg     Config
	backend *Backend
	cleaner *Cleaner
	log     *slog.Logger

	stream  *secretStream
	master  *MasterDB
	catalog *Catalog
	dir     string
}

// BackendInfo is the shape a host registers under the name "mem" (§6):
// four operations plus the name the storage capability advertises them
// under.
type BackendInfo struct {
	Name     string
	Add      func(object string, tags []Tag, line string) error
	Request  func(object string, filter Filter) *Result
	Destroy  func(object string) bool
	SetLimit func(object string, maxLines int, maxTime int64)
}

// NewHost constructs a Host from cfg. If cfg.Persist is set this also
// opens (or creates) the master DB and catalog, so it can fail for I/O
// or decryption reasons; ConfigPostTest should be called earlier to
// catch what it can before this point.
func NewHost(cfg Config, log *slog.Logger) (*Host, error) {
	if log == nil {
		log = slog.Default()
	}
	backend, err := NewBackend()
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	h := &Host{cfg: cfg, backend: backend, log: log}
	h.cleaner = NewCleaner(backend)

	if cfg.Persist {
		if err := h.enablePersistence(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Host) enablePersistence() error {
	if h.cfg.DBSecret == "" {
		return errors.New("history: db-secret is required when persist is enabled")
	}
	if err := os.MkdirAll(h.cfg.Directory, 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	h.stream = newSecretStream(h.cfg.DBSecret)

	master, err := LoadOrCreateMasterDB(h.cfg.masterDBPath(), h.stream)
	if err != nil {
		return fmt.Errorf("master db: %w", err)
	}
	h.master = master

	catalog, err := OpenCatalog(h.cfg.catalogDBPath())
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	h.catalog = catalog
	h.dir = h.cfg.Directory
	return nil
}

// ConfigPostTest validates a candidate Config the way hbm_config_posttest
// validates set::history::channel: db-secret and persist must agree, and
// if persistence is requested the directory and master DB must actually
// be reachable before the host commits to the new config.
func ConfigPostTest(cfg Config) error {
	if cfg.Persist && cfg.DBSecret == "" {
		return errors.New("history: db-secret is required when persist is enabled")
	}
	if !cfg.Persist && cfg.DBSecret != "" {
		return errors.New("history: db-secret is set but persist is not enabled")
	}
	if !cfg.Persist {
		return nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		return fmt.Errorf("history: directory %q is not usable: %w", cfg.Directory, err)
	}
	stream := newSecretStream(cfg.DBSecret)
	if _, err := LoadOrCreateMasterDB(cfg.masterDBPath(), stream); err != nil {
		return fmt.Errorf("history: master db: %w", err)
	}
	return nil
}

// LoadAll reconciles the persistence directory against the live backend.
// It is a no-op when persistence isn't enabled.
func (h *Host) LoadAll() error {
	if !h.cfg.Persist {
		return nil
	}
	r := NewReconciler(h.dir, h.stream, h.master, h.log)
	return r.LoadAll(h.backend, h.catalog)
}

// Rehash resets the configuration to defaults rooted at permDataDir,
// mirroring hbm_rehash's "config block disappears, revert to built-ins"
// behavior. Existing master DB salts are never rotated by a rehash.
func (h *Host) Rehash(permDataDir string) {
	h.cfg = DefaultConfig(permDataDir)
}

// CapabilityParameter is the value advertised for
// unrealircd.org/history-storage (§6).
func (h *Host) CapabilityParameter() string { return h.cfg.CapabilityParameter() }

// Add appends line to object, logging a warning if the object had no
// configured limit and was healed with defaults.
func (h *Host) Add(object string, tags []Tag, line string) error {
	healed, err := h.backend.Add(object, tags, line)
	if err != nil {
		return err
	}
	if healed {
		h.log.Warn("history: add() called for object with no configured limit, using defaults", "object", object)
	}
	return nil
}

// Request returns a filtered replay for object, or nil if no object by
// that name exists (neither Add nor SetLimit has created it, or it was
// destroyed).
func (h *Host) Request(object string, filter Filter) *Result {
	return h.backend.Request(object, filter)
}

// SetLimit installs new caps on object.
func (h *Host) SetLimit(object string, maxLines int, maxTime int64) {
	h.backend.SetLimit(object, maxLines, maxTime)
}

// Destroy drops object from memory and, if persisted, removes its file
// and catalog entry too.
func (h *Host) Destroy(object string) bool {
	if h.cfg.Persist {
		h.deleteFile(object)
	}
	return h.backend.Destroy(object)
}

// ModeCharDel implements the mode-char-del(object, modechar) hook (§6):
// when a channel loses the mode that made it persistence-eligible (by
// convention 'P'), its on-disk copy is removed immediately rather than
// waiting for the next cleaner tick.
func (h *Host) ModeCharDel(object string, modechar rune) {
	if !h.cfg.Persist || modechar != 'P' {
		return
	}
	o := h.backend.idx.find(object)
	if o == nil {
		return
	}
	h.deleteFile(object)
	o.Dirty = true // a later re-enable must cause a rewrite, matching hbm_modechar_del
}

func (h *Host) deleteFile(object string) {
	path := filepath.Join(h.dir, objectFilename(object, h.master))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.log.Warn("history: failed to remove object database file", "object", object, "error", err)
	}
	if h.catalog != nil {
		if err := h.catalog.Remove(object); err != nil {
			h.log.Warn("history: failed to remove catalog entry", "object", object, "error", err)
		}
	}
}

// Tick drives the cleaner sweep; the host calls this on its own timer at
// roughly TickInterval.
func (h *Host) Tick() {
	h.cleaner.Tick(h.cfg.Persist, h.writeObject)
}

func (h *Host) writeObject(o *Object) error {
	if h.cfg.PersistenceEligible != nil && !h.cfg.PersistenceEligible(o.Name) {
		return errPersistNotEligible
	}

	plain := encodeObject(o, h.master.Prehash, h.master.Posthash)
	cipher, err := h.stream.encrypt(plain)
	if err != nil {
		h.log.Warn("history: error encrypting object database, not saved", "object", o.Name, "error", err)
		return err
	}

	target := filepath.Join(h.dir, objectFilename(o.Name, h.master))
	if err := writeFileAtomic(target, cipher); err != nil {
		h.log.Warn("history: error writing object database, not saved", "object", o.Name, "error", err)
		return err
	}

	if h.catalog != nil {
		if _, err := h.catalog.RecordWrite(o.Name, filepath.Base(target), int64(len(cipher)), plain, h.backend.chainKey(), time.Now()); err != nil {
			h.log.Warn("history: failed to update catalog", "object", o.Name, "error", err)
		}
	}
	return nil
}

// VerifyChain re-reads and decrypts object's on-disk file, replays the
// catalog's recorded write history with that fresh read substituted for
// its own memory of the latest write, and reports whether the result
// still matches the object's latest chain tag. This is what actually
// notices a .db file swapped out from under the module: RecordWrite's
// own bookkeeping can never disagree with itself, but a tampered file
// decrypts to different plaintext, folds to a different hash, and the
// tag comes out wrong.
func (h *Host) VerifyChain(object string) (bool, error) {
	if h.catalog == nil {
		return false, errors.New("history: persistence is not enabled")
	}

	path := filepath.Join(h.dir, objectFilename(object, h.master))
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read object database: %w", err)
	}
	plain, err := h.stream.decrypt(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	hash := sha256.Sum256(plain)

	return h.backend.VerifyChain(h.catalog, object, hash[:])
}

// CatalogSummary renders the human-readable persisted-object report, or
// an error if persistence isn't enabled.
func (h *Host) CatalogSummary() (string, error) {
	if h.catalog == nil {
		return "", errors.New("history: persistence is not enabled")
	}
	return h.catalog.Summary()
}

// BackendInfo returns the registration shape for this host's backend,
// named "mem" per §6.
func (h *Host) BackendInfo() BackendInfo {
	return BackendInfo{
		Name:     "mem",
		Add:      h.Add,
		Request:  h.Request,
		Destroy:  h.Destroy,
		SetLimit: h.SetLimit,
	}
}

// Close releases the catalog handle, if persistence was enabled.
func (h *Host) Close() error {
	if h.catalog != nil {
		return h.catalog.Close()
	}
	return nil
}
