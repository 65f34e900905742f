package history

import (
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"
)

func TestCatalogRecordAndVerifyChain(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer cat.Close()

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	now := time.Unix(1_700_000_000, 0)

	if _, err := cat.RecordWrite("#a", "aaa.db", 100, []byte("plaintext v1"), key, now); err != nil {
		t.Fatalf("RecordWrite 1: %v", err)
	}
	ok, err := cat.VerifyChain("#a", key, nil)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !ok {
		t.Fatal("expected chain to verify after a single write")
	}

	if _, err := cat.RecordWrite("#a", "aaa.db", 120, []byte("plaintext v2"), key, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordWrite 2: %v", err)
	}
	ok, err = cat.VerifyChain("#a", key, nil)
	if err != nil || !ok {
		t.Fatalf("expected chain to verify after a second write: ok=%v err=%v", ok, err)
	}

	// A different key must not verify against the same recorded history.
	var wrongKey [32]byte
	for i := range wrongKey {
		wrongKey[i] = byte(255 - i)
	}
	ok, err = cat.VerifyChain("#a", wrongKey, nil)
	if err != nil {
		t.Fatalf("VerifyChain with wrong key: %v", err)
	}
	if ok {
		t.Fatal("chain should not verify under a different key")
	}
}

// A caller that supplies the hash of a freshly re-read file must fail
// verification when that hash doesn't match what was actually written,
// exactly as if the .db file on disk had been swapped for another one.
func TestCatalogVerifyChainDetectsSwappedFile(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer cat.Close()

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	now := time.Unix(1_700_000_000, 0)

	if _, err := cat.RecordWrite("#a", "aaa.db", 100, []byte("plaintext v1"), key, now); err != nil {
		t.Fatalf("RecordWrite: %v", err)
	}

	genuine := sha256.Sum256([]byte("plaintext v1"))
	ok, err := cat.VerifyChain("#a", key, genuine[:])
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !ok {
		t.Fatal("expected chain to verify when the re-read file matches what was recorded")
	}

	tampered := sha256.Sum256([]byte("something else entirely"))
	ok, err = cat.VerifyChain("#a", key, tampered[:])
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if ok {
		t.Fatal("expected chain not to verify when the on-disk file no longer matches the recorded write")
	}
}

func TestCatalogVerifyChainUnknownObject(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	var key [32]byte
	ok, err := cat.VerifyChain("#never", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for an object with no recorded history")
	}
}

func TestCatalogRemove(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	var key [32]byte
	if _, err := cat.RecordWrite("#a", "aaa.db", 10, []byte("x"), key, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := cat.Remove("#a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	summary, err := cat.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if summary != "" {
		t.Fatalf("expected empty summary after removal, got %q", summary)
	}
}

func TestCatalogSummaryFormat(t *testing.T) {
	dir := t.TempDir()
	cat, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	var key [32]byte
	if _, err := cat.RecordWrite("#a", "aaa.db", 2048, []byte("x"), key, time.Now()); err != nil {
		t.Fatal(err)
	}
	summary, err := cat.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}
}
