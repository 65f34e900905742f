package history

import "testing"

func TestFoldTagDeterministicAndSensitive(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i * 3)
	}
	var prev [32]byte

	a := foldTag(key, prev, []byte("hello"))
	b := foldTag(key, prev, []byte("hello"))
	if a != b {
		t.Fatal("foldTag should be deterministic for identical inputs")
	}

	c := foldTag(key, prev, []byte("world"))
	if a == c {
		t.Fatal("different data should fold to different tags")
	}

	d := foldTag(key, a, []byte("hello"))
	if a == d {
		t.Fatal("chaining onto a non-zero previous tag should change the result")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Error("equal slices should compare equal")
	}
	if constantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Error("differing slices should not compare equal")
	}
	if constantTimeEqual([]byte("abc"), []byte("ab")) {
		t.Error("differing lengths should not compare equal")
	}
}

func TestBackendVerifyChainNilCatalog(t *testing.T) {
	b, err := NewBackend()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.VerifyChain(nil, "#x", nil); err == nil {
		t.Fatal("expected an error when no catalog is configured")
	}
}
