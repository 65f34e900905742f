package history

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// bucketCount mirrors HISTORY_BACKEND_MEM_HASH_TABLE_SIZE: a fixed,
// non-resizing bucket count chosen for the channel-count scale this
// backend targets, not for arbitrary growth.
const bucketCount = 1019

// hashIndex is an open-chained hash table over Objects, keyed by a
// lowercased name under a keyed hash generated once at construction. The
// key is process-lifetime only and never persisted: bucket assignment is
// allowed to change across restarts.
type hashIndex struct {
	key     [32]byte
	buckets [bucketCount]*Object
}

func newHashIndex() (*hashIndex, error) {
	idx := &hashIndex{}
	if _, err := rand.Read(idx.key[:]); err != nil {
		return nil, fmt.Errorf("generate hash index key: %w", err)
	}
	return idx, nil
}

func (h *hashIndex) bucketOf(name string) int {
	hasher, err := blake3.NewKeyed(h.key[:])
	if err != nil {
		// h.key is always exactly 32 bytes; NewKeyed only fails on key
		// length, so this is unreachable.
		panic(err)
	}
	hasher.Write([]byte(strings.ToLower(name)))
	sum := hasher.Sum(nil)
	return int(binary.BigEndian.Uint64(sum[:8]) % bucketCount)
}

func (h *hashIndex) find(name string) *Object {
	for o := h.buckets[h.bucketOf(name)]; o != nil; o = o.next {
		if strings.EqualFold(o.Name, name) {
			return o
		}
	}
	return nil
}

func (h *hashIndex) findOrAdd(name string) *Object {
	if o := h.find(name); o != nil {
		return o
	}
	b := h.bucketOf(name)
	o := &Object{Name: name, next: h.buckets[b]}
	if o.next != nil {
		o.next.prev = o
	}
	h.buckets[b] = o
	return o
}

func (h *hashIndex) remove(o *Object) {
	b := h.bucketOf(o.Name)
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		h.buckets[b] = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	}
	o.prev, o.next = nil, nil
}
