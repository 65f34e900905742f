package history

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Reconciler loads every persisted object at startup, replaying each
// through the live backend, quarantining files that fail to decode, and
// deleting files for objects the host never registered a limit for
// (orphans left behind by a config change since the last run).
type Reconciler struct {
	dir    string
	stream *secretStream
	master *MasterDB
	log    *slog.Logger
}

func NewReconciler(dir string, stream *secretStream, master *MasterDB, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{dir: dir, stream: stream, master: master, log: log}
}

// LoadAll walks dir once, populating backend and catalog. A missing
// directory is not an error: it means nothing has ever been persisted.
func (r *Reconciler) LoadAll(backend *Backend, catalog *Catalog) error {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") || e.Name() == masterDBFilename || e.Name() == catalogDBFilename {
			continue
		}
		err := r.loadOne(e.Name(), backend, catalog)
		switch {
		case err == nil:
			// loaded (or deliberately deleted as an orphan)
		case errors.Is(err, ErrForeignInstallation):
			r.log.Info("history: leaving database from a different installation untouched", "file", e.Name())
		default:
			r.log.Warn("history: quarantining unreadable database file", "file", e.Name(), "error", err)
			if qerr := quarantine(r.dir, e.Name()); qerr != nil {
				r.log.Error("history: failed to quarantine file", "file", e.Name(), "error", qerr)
			}
		}
	}
	return nil
}

func (r *Reconciler) loadOne(name string, backend *Backend, catalog *Catalog) error {
	path := filepath.Join(r.dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	plain, err := r.stream.decrypt(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	obj, err := decodeObject(plain)
	if err != nil {
		return err
	}

	if obj.Prehash != r.master.Prehash || obj.Posthash != r.master.Posthash {
		return ErrForeignInstallation
	}

	if backend.idx.find(obj.Name) == nil {
		r.log.Warn("history: object has no configured limit, deleting its history", "object", obj.Name)
		return os.Remove(path)
	}

	backend.SetLimit(obj.Name, obj.MaxLines, obj.MaxTime)
	for _, l := range obj.Lines {
		if _, err := backend.Add(obj.Name, l.Tags, l.Text); err != nil {
			return fmt.Errorf("replay line: %w", err)
		}
	}
	if live := backend.idx.find(obj.Name); live != nil {
		live.Dirty = false
	}

	if catalog != nil {
		if _, err := catalog.RecordWrite(obj.Name, name, int64(len(raw)), plain, backend.chainKey(), fileModTimeOr(path)); err != nil {
			r.log.Warn("history: failed to record catalog entry on load", "object", obj.Name, "error", err)
		}
	}
	return nil
}

func fileModTimeOr(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}
