package history

import (
	"path/filepath"
	"testing"
)

func TestMasterDBGenerateAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.db")
	stream := newSecretStream("correct horse battery staple")

	first, err := LoadOrCreateMasterDB(path, stream)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(first.Prehash) != saltLength || len(first.Posthash) != saltLength {
		t.Fatalf("unexpected salt lengths: %d, %d", len(first.Prehash), len(first.Posthash))
	}
	if first.Prehash == first.Posthash {
		t.Fatalf("prehash and posthash should not collide")
	}

	second, err := LoadOrCreateMasterDB(path, stream)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if second.Prehash != first.Prehash || second.Posthash != first.Posthash {
		t.Fatalf("reload produced different salts: got (%q,%q) want (%q,%q)",
			second.Prehash, second.Posthash, first.Prehash, first.Posthash)
	}
}

func TestMasterDBWrongSecretFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.db")

	if _, err := LoadOrCreateMasterDB(path, newSecretStream("secret-one")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := LoadOrCreateMasterDB(path, newSecretStream("secret-two")); err == nil {
		t.Fatal("expected decryption to fail under a different secret")
	}
}

func TestRandomAlnumCharset(t *testing.T) {
	s, err := randomAlnum(256)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 256 {
		t.Fatalf("length = %d, want 256", len(s))
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			t.Fatalf("non-alnum character %q in generated salt", c)
		}
	}
}
