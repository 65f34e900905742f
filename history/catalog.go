package history

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// Catalog is a local, unencrypted SQLite side-index of persisted
// objects: never the store of record (that's the per-object .db files
// under crypto.go's envelope), purely admin-visible bookkeeping so an
// operator can list what has been written to disk without decrypting
// every file, and so VerifyChain has something to replay against.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if necessary) the SQLite database at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS objects (
	name       TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	chain_tag  BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chain_events (
	object       TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	content_hash BLOB NOT NULL,
	chain_tag    BLOB NOT NULL,
	written_at   INTEGER NOT NULL,
	PRIMARY KEY (object, seq)
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// RecordWrite logs a successful persist of name's current plaintext
// encoding, folding a new chain tag onto whatever was last recorded for
// this object and returning it.
func (c *Catalog) RecordWrite(name, filename string, size int64, plaintext []byte, key [32]byte, now time.Time) ([32]byte, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return [32]byte{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var prev [32]byte
	var prevBytes []byte
	var seq int64
	err = tx.QueryRow(`SELECT seq, chain_tag FROM chain_events WHERE object = ? ORDER BY seq DESC LIMIT 1`, name).
		Scan(&seq, &prevBytes)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq = 0
	case err != nil:
		return [32]byte{}, fmt.Errorf("read last chain event: %w", err)
	default:
		copy(prev[:], prevBytes)
	}
	seq++

	contentHash := sha256.Sum256(plaintext)
	tag := foldTag(key, prev, contentHash[:])

	if _, err := tx.Exec(
		`INSERT INTO chain_events (object, seq, content_hash, chain_tag, written_at) VALUES (?,?,?,?,?)`,
		name, seq, contentHash[:], tag[:], now.Unix(),
	); err != nil {
		return [32]byte{}, fmt.Errorf("insert chain event: %w", err)
	}

	if _, err := tx.Exec(`
INSERT INTO objects (name, filename, size_bytes, chain_tag, updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET filename=excluded.filename, size_bytes=excluded.size_bytes,
	chain_tag=excluded.chain_tag, updated_at=excluded.updated_at`,
		name, filename, size, tag[:], now.Unix(),
	); err != nil {
		return [32]byte{}, fmt.Errorf("upsert object: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return [32]byte{}, fmt.Errorf("commit: %w", err)
	}
	return tag, nil
}

// Remove drops name's catalog entry (its persisted file has been
// deleted). The chain_events history is kept for audit purposes.
func (c *Catalog) Remove(name string) error {
	_, err := c.db.Exec(`DELETE FROM objects WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// VerifyChain recomputes the fold over every recorded write for name and
// compares it against the latest tag stored in objects. If
// currentFileHash is non-nil it replaces the most recent link in the
// fold with the sha256 of a freshly read-and-decrypted copy of the
// object's on-disk file: that is what actually catches a .db file
// replaced by something other than this module's own atomic writer,
// since a swapped file folds to a different tag than the one recorded
// at write time. Passing nil verifies the catalog's own internal
// consistency only, without touching disk.
func (c *Catalog) VerifyChain(name string, key [32]byte, currentFileHash []byte) (bool, error) {
	rows, err := c.db.Query(`SELECT content_hash FROM chain_events WHERE object = ? ORDER BY seq ASC`, name)
	if err != nil {
		return false, fmt.Errorf("query chain events: %w", err)
	}
	defer rows.Close()

	var hashes [][]byte
	for rows.Next() {
		var contentHash []byte
		if err := rows.Scan(&contentHash); err != nil {
			return false, fmt.Errorf("scan chain event: %w", err)
		}
		hashes = append(hashes, contentHash)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate chain events: %w", err)
	}
	if len(hashes) == 0 {
		return false, nil
	}
	if currentFileHash != nil {
		hashes[len(hashes)-1] = currentFileHash
	}

	var tag [32]byte
	for _, h := range hashes {
		tag = foldTag(key, tag, h)
	}

	var stored []byte
	err = c.db.QueryRow(`SELECT chain_tag FROM objects WHERE name = ?`, name).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read object chain tag: %w", err)
	}
	return constantTimeEqual(tag[:], stored), nil
}

// Summary renders a human-readable one-line-per-object report, sizes
// formatted with humanize.Bytes.
func (c *Catalog) Summary() (string, error) {
	rows, err := c.db.Query(`SELECT name, size_bytes, updated_at FROM objects ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var name string
		var size, updated int64
		if err := rows.Scan(&name, &size, &updated); err != nil {
			return "", fmt.Errorf("scan object: %w", err)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\n", name, humanize.Bytes(uint64(size)), humanize.Time(time.Unix(updated, 0)))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate objects: %w", err)
	}
	return b.String(), nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }
