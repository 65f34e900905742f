// Package history implements a per-object append-only message history
// store: bounded in count and age, optionally persisted to disk under
// authenticated encryption. It is consumed by a host that adds lines as
// they occur and asks for a filtered replay when a client joins or
// requests scroll-back.
package history

import "time"

// DefaultMaxLines and DefaultMaxTime are the self-heal defaults applied
// when Add is called on an object that has never had SetLimit called on
// it (a programming error by the host in normal operation).
const (
	DefaultMaxLines = 50
	DefaultMaxTime  = 86400 // seconds
)

// Tag is one IRC-style message tag: a name plus an optional value. A nil
// Value means the tag carries no value (e.g. "+draft/typing" rather than
// "time=...").
type Tag struct {
	Name  string
	Value *string
}

// Line is one recorded message: timestamp, tags, and raw text. Lines form
// a doubly-linked sequence per Object, ordered by insertion.
type Line struct {
	prev, next *Line

	T     int64 // seconds since epoch
	Tags  []Tag
	Text  string
}

// Object is a named history container, keyed case-insensitively. The
// hash index holds a non-owning reference to it; Object owns its line
// list exclusively.
type Object struct {
	prev, next *Object // hash bucket chain, owned by hashIndex

	Name string

	head, tail *Line
	NumLines   int
	// OldestT is the smallest timestamp across all lines, or 0 meaning
	// "unknown, must be recomputed before relied on".
	OldestT int64

	MaxLines int
	MaxTime  int64 // seconds

	// Dirty is true when the in-memory state has diverged from the
	// object's on-disk copy.
	Dirty bool
}

// Filter narrows a Request to the last last_seconds worth of history and
// at most last_lines rows. It may only be more restrictive than the
// object's own limits, never more permissive.
type Filter struct {
	LastSeconds int64
	LastLines   int
}

// Result is a query snapshot: the object name plus a freshly-owned copy
// of the surviving lines, in order. The caller owns it; later mutation of
// the live object never retroactively changes a Result already returned.
type Result struct {
	Object string
	Lines  []Line
}

func deepCopyTags(tags []Tag) []Tag {
	if tags == nil {
		return nil
	}
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i].Name = t.Name
		if t.Value != nil {
			v := *t.Value
			out[i].Value = &v
		}
	}
	return out
}

// timeTagLayout is the ISO-8601 millisecond-precision, Z-suffixed layout
// used for the synthesized/parsed "time" message tag.
const timeTagLayout = "2006-01-02T15:04:05.000Z"

// resolveTimestamp implements §4.2 step 4: if a "time" tag is present its
// value is parsed into the line's timestamp; otherwise one is synthesized
// from now and appended to tags. tags is mutated in place.
//
// Open question (see DESIGN.md): a malformed "time" value produces an
// undefined line timestamp; this implementation falls back to the
// current wall-clock time without touching the tag that was supplied.
func resolveTimestamp(tags *[]Tag, now func() time.Time) int64 {
	for i := range *tags {
		if !equalFoldASCII((*tags)[i].Name, "time") {
			continue
		}
		if (*tags)[i].Value != nil {
			if t, err := time.Parse(timeTagLayout, *(*tags)[i].Value); err == nil {
				return t.Unix()
			}
		}
		return now().Unix()
	}

	ts := now().UTC()
	value := ts.Format(timeTagLayout)
	*tags = append(*tags, Tag{Name: "time", Value: &value})
	return ts.Unix()
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
