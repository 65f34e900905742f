package history

import "errors"

var (
	// ErrCorrupt means a persisted object file could not be decoded and
	// should be quarantined rather than trusted.
	ErrCorrupt = errors.New("history: corrupt or unreadable database file")

	// ErrUnsupportedVersion means the file's version tag is outside the
	// range this build knows how to read.
	ErrUnsupportedVersion = errors.New("history: unsupported database version")

	// ErrForeignInstallation means the file decoded cleanly but its
	// salts don't match this installation's master DB; it belongs to a
	// different data directory and must be left alone.
	ErrForeignInstallation = errors.New("history: database belongs to a different installation")

	// ErrNotFound is returned by Backend.VerifyChain when it is given no
	// catalog to look the object up in.
	ErrNotFound = errors.New("history: object not found")

	// errPersistNotEligible signals that a write callback deliberately
	// did nothing because the object isn't currently persistence-eligible
	// (e.g. lacks +P). It is distinct from a real write failure: the
	// cleaner must not clear Dirty on the strength of it, or a re-enable
	// after a mode-del would silently never get rewritten.
	errPersistNotEligible = errors.New("history: object not persistence-eligible")
)
