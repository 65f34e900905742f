package history

import "path/filepath"

const (
	defaultSubdir       = "history"
	masterDBFilename    = "master.db"
	catalogDBFilename   = "catalog.db"
)

// Config is what the host fills in from its own set::history::channel
// block (parsing that block is out of scope for this module, see
// spec.md §1) before calling NewHost. It is yaml-tagged so the host can
// unmarshal it as a nested block the same way it loads any other config
// sub-struct.
type Config struct {
	// Persist enables on-disk storage. When false the backend is
	// memory-only and Directory/DBSecret are ignored.
	Persist bool `yaml:"persist"`

	// Directory is where master.db, catalog.db and per-object .db files
	// live. Created on demand.
	Directory string `yaml:"directory"`

	// DBSecret is the opaque secret identifier the host derives an
	// encryption passphrase from. Required when Persist is true.
	DBSecret string `yaml:"db-secret"`

	// PersistenceEligible, if set, reports whether a given object name
	// should actually be written to disk (e.g. an IRC channel needs
	// mode +P). A nil func means every object is eligible, which is
	// correct for a host that has no such concept.
	PersistenceEligible func(object string) bool `yaml:"-"`
}

// DefaultConfig returns a memory-only configuration rooted under the
// host's permanent data directory, matching the module's out-of-the-box
// behavior before any set::history::channel block is applied.
func DefaultConfig(permDataDir string) Config {
	return Config{Directory: filepath.Join(permDataDir, defaultSubdir)}
}

func (c Config) masterDBPath() string  { return filepath.Join(c.Directory, masterDBFilename) }
func (c Config) catalogDBPath() string { return filepath.Join(c.Directory, catalogDBFilename) }

// CapabilityParameter is the value this module advertises for the
// unrealircd.org/history-storage capability (§6): "memory" alone, or
// "memory,disk=encrypted" once persistence is configured.
func (c Config) CapabilityParameter() string {
	if c.Persist {
		return "memory,disk=encrypted"
	}
	return "memory"
}
