package history

import "github.com/zeebo/blake3"

// foldTag folds data onto prev under key, producing the next link in a
// running digest chain: tag[n] = BLAKE3_k(tag[n-1] || data). Reusing the
// hash index's key here means a fresh chain begins at process start
// exactly when bucket assignment does, without a second key schedule.
func foldTag(key [32]byte, prev [32]byte, data []byte) [32]byte {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic(err) // key is always 32 bytes
	}
	h.Write(prev[:])
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// VerifyChain replays the recorded write history for name from the
// catalog and confirms the folded digest matches the tag recorded
// alongside the object's latest entry. currentFileHash, when non-nil,
// is the sha256 of a freshly read-and-decrypted copy of the object's
// on-disk file; substituting it for the catalog's own memory of that
// write is what lets this detect a .db file replaced by something
// other than this module's own atomic writer. It is host-callable
// tooling, never consulted internally.
//
// It reports (false, nil) if name has no catalog history at all. It
// returns ErrNotFound if catalog is nil, and otherwise an error only for
// a catalog I/O failure.
func (b *Backend) VerifyChain(catalog *Catalog, name string, currentFileHash []byte) (bool, error) {
	if catalog == nil {
		return false, ErrNotFound
	}
	return catalog.VerifyChain(name, b.chainKey(), currentFileHash)
}
