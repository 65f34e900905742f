package history

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Per-object database file format (mirrors hbm_write_db/hbm_read_db):
//
//	u32 magicFileStart
//	u32 version
//	str prehash
//	str posthash
//	str object name
//	u64 max_lines
//	u64 max_time
//	repeated:
//	  u32 magicEntryStart
//	  u64 timestamp
//	  repeated (str name, str value) terminated by (nil, nil)
//	  str line text
//	  u32 magicEntryEnd
//	u32 magicFileEnd
const (
	magicFileStart  uint32 = 0xFEFEFEFE
	magicFileEnd    uint32 = 0xEFEFEFEF
	magicEntryStart uint32 = 0xFFFFFFFF
	magicEntryEnd   uint32 = 0xEEEEEEEE

	dbVersion    uint32 = 5000
	dbVersionMin uint32 = 4999
)

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// writeStr encodes an optional string as a presence byte followed by a
// length-prefixed payload, so a nil string (used as the tag-list
// terminator) is distinguishable from a present empty string.
func writeStr(buf *bytes.Buffer, s *string) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeU32(buf, uint32(len(*s)))
	buf.WriteString(*s)
}

func readU32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r *bufio.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readStr(r *bufio.Reader) (*string, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		return nil, nil
	}
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	s := string(buf)
	return &s, nil
}

// encodeObject serializes o's current state (not a Result snapshot) into
// the on-disk record format, binding prehash/posthash so a later read
// can detect a file from a foreign installation.
func encodeObject(o *Object, prehash, posthash string) []byte {
	var buf bytes.Buffer
	writeU32(&buf, magicFileStart)
	writeU32(&buf, dbVersion)
	writeStr(&buf, &prehash)
	writeStr(&buf, &posthash)
	writeStr(&buf, &o.Name)
	writeU64(&buf, uint64(o.MaxLines))
	writeU64(&buf, uint64(o.MaxTime))

	for l := o.head; l != nil; l = l.next {
		writeU32(&buf, magicEntryStart)
		writeU64(&buf, uint64(l.T))
		for _, t := range l.Tags {
			writeStr(&buf, &t.Name)
			writeStr(&buf, t.Value)
		}
		writeStr(&buf, nil)
		writeStr(&buf, nil)
		writeStr(&buf, &l.Text)
		writeU32(&buf, magicEntryEnd)
	}

	writeU32(&buf, magicFileEnd)
	return buf.Bytes()
}

type decodedObject struct {
	Name             string
	MaxLines         int
	MaxTime          int64
	Lines            []Line
	Prehash, Posthash string
}

// decodeObject is the inverse of encodeObject. Any structural
// inconsistency (bad magic, truncated stream, malformed tag pair) is
// reported as ErrCorrupt; the caller is responsible for quarantining the
// source file.
func decodeObject(data []byte) (*decodedObject, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	magic, err := readU32(r)
	if err != nil || magic != magicFileStart {
		return nil, ErrCorrupt
	}
	version, err := readU32(r)
	if err != nil {
		return nil, ErrCorrupt
	}
	if version < dbVersionMin || version > dbVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	prehashP, err := readStr(r)
	if err != nil {
		return nil, ErrCorrupt
	}
	posthashP, err := readStr(r)
	if err != nil {
		return nil, ErrCorrupt
	}
	nameP, err := readStr(r)
	if err != nil || nameP == nil {
		return nil, ErrCorrupt
	}
	maxLines, err := readU64(r)
	if err != nil {
		return nil, ErrCorrupt
	}
	maxTime, err := readU64(r)
	if err != nil {
		return nil, ErrCorrupt
	}

	out := &decodedObject{
		Name:      *nameP,
		MaxLines:  int(maxLines),
		MaxTime:   int64(maxTime),
		Prehash:   derefOr(prehashP, ""),
		Posthash:  derefOr(posthashP, ""),
	}

	for {
		magic, err := readU32(r)
		if err != nil {
			return nil, ErrCorrupt
		}
		if magic == magicFileEnd {
			break
		}
		if magic != magicEntryStart {
			return nil, ErrCorrupt
		}

		ts, err := readU64(r)
		if err != nil {
			return nil, ErrCorrupt
		}

		var tags []Tag
		for {
			namePtr, err := readStr(r)
			if err != nil {
				return nil, ErrCorrupt
			}
			valPtr, err := readStr(r)
			if err != nil {
				return nil, ErrCorrupt
			}
			if namePtr == nil && valPtr == nil {
				break
			}
			if namePtr == nil {
				return nil, ErrCorrupt
			}
			tags = append(tags, Tag{Name: *namePtr, Value: valPtr})
		}

		textPtr, err := readStr(r)
		if err != nil {
			return nil, ErrCorrupt
		}

		magic, err = readU32(r)
		if err != nil || magic != magicEntryEnd {
			return nil, ErrCorrupt
		}

		out.Lines = append(out.Lines, Line{T: int64(ts), Tags: tags, Text: derefOr(textPtr, "")})
	}

	return out, nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// objectFilename derives the on-disk filename for name the same way the
// original computes it: a SHA-256 digest of "prehash lowercase(name)
// posthash", so an attacker who reads the directory listing alone can't
// recover channel names, and files move if either salt changes.
func objectFilename(name string, master *MasterDB) string {
	sum := sha256.Sum256([]byte(master.Prehash + " " + strings.ToLower(name) + " " + master.Posthash))
	return hex.EncodeToString(sum[:]) + ".db"
}

func writeFileAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := atomicReplace(tmp, target); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// quarantine moves a file that failed to decode into a bad/ subdirectory
// rather than deleting it, so an operator can inspect it later.
func quarantine(dir, name string) error {
	badDir := filepath.Join(dir, "bad")
	if err := os.MkdirAll(badDir, 0o700); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}
	dest := filepath.Join(badDir, name)
	_ = os.Remove(dest)
	if err := os.Rename(filepath.Join(dir, name), dest); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	return nil
}
