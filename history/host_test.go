package history

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// tickFully drives the amortized cleaner enough times to guarantee a
// full pass over every bucket at least once. bucketCount is prime and
// CleanPerLoop doesn't divide it evenly, so the cursor visits every
// residue exactly once every bucketCount single-bucket steps; enough
// whole Tick calls to exceed that is sufficient for a deterministic
// test, where production code just relies on enough ticks happening
// over time.
func tickFully(h *Host) {
	steps := bucketCount/CleanPerLoop + 2
	for i := 0; i < steps; i++ {
		h.Tick()
	}
}

// Scenario 5: persistence round-trip.
func TestHostPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Persist: true, Directory: dir, DBSecret: "s3cr3t-passphrase"}

	h, err := NewHost(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if err := h.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	h.SetLimit("#c", 5, 3600)
	fooBar := "bar"
	if err := h.Add("#c", nil, "line one"); err != nil {
		t.Fatal(err)
	}
	if err := h.Add("#c", []Tag{{Name: "foo", Value: &fooBar}}, "line two"); err != nil {
		t.Fatal(err)
	}
	if err := h.Add("#c", nil, "line three"); err != nil {
		t.Fatal(err)
	}

	tickFully(h) // forces a persist of the dirty object
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a restart: fresh Host, fresh Backend, same directory/secret.
	h2, err := NewHost(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("NewHost (restart): %v", err)
	}
	defer h2.Close()

	h2.SetLimit("#c", 5, 3600) // limits must exist before replay, per §9's ordering note
	if err := h2.LoadAll(); err != nil {
		t.Fatalf("LoadAll (restart): %v", err)
	}

	res := h2.Request("#c", Filter{LastSeconds: 3600, LastLines: 10})
	if res == nil {
		t.Fatal("expected #c to survive a restart")
	}
	if len(res.Lines) != 3 {
		t.Fatalf("got %d lines, want 3: %+v", len(res.Lines), res.Lines)
	}
	if res.Lines[0].Text != "line one" || res.Lines[1].Text != "line two" || res.Lines[2].Text != "line three" {
		t.Fatalf("line order/content wrong: %+v", res.Lines)
	}

	foundFoo := false
	for _, tg := range res.Lines[1].Tags {
		if tg.Name == "foo" {
			foundFoo = true
			if tg.Value == nil || *tg.Value != "bar" {
				t.Errorf("foo tag value = %v, want bar", tg.Value)
			}
		}
	}
	if !foundFoo {
		t.Error("foo=bar tag lost across restart")
	}

	live := h2.backend.idx.find("#c")
	if live == nil {
		t.Fatal("object missing from index after reload")
	}
	if live.Dirty {
		t.Error("freshly reloaded object should not be dirty")
	}
}

// Scenario 6: mode-toggle cleanup.
func TestHostModeToggleCleanup(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Persist: true, Directory: dir, DBSecret: "another-passphrase"}

	h, err := NewHost(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()

	h.SetLimit("#d", 5, 3600)
	if err := h.Add("#d", nil, "hello"); err != nil {
		t.Fatal(err)
	}
	tickFully(h)

	path := filepath.Join(dir, objectFilename("#d", h.master))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected #d's file to exist after tick: %v", err)
	}

	h.ModeCharDel("#d", 'P')
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected #d's file removed after mode-del, got err=%v", err)
	}

	live := h.backend.idx.find("#d")
	if live == nil {
		t.Fatal("mode-del must not remove the in-memory object, only its file")
	}
	if !live.Dirty {
		t.Fatal("ModeCharDel should mark the object dirty so a later re-enable causes a rewrite")
	}
	tickFully(h)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected #d's file to exist again after re-enable and tick: %v", err)
	}
}

func TestConfigPostTest(t *testing.T) {
	if err := ConfigPostTest(Config{Persist: true, DBSecret: ""}); err == nil {
		t.Fatal("expected error: persist without db-secret")
	}
	if err := ConfigPostTest(Config{Persist: false}); err != nil {
		t.Fatalf("memory-only config should always pass: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "history")
	if err := ConfigPostTest(Config{Persist: true, Directory: dir, DBSecret: "x"}); err != nil {
		t.Fatalf("valid persistent config should pass: %v", err)
	}
}

func TestCapabilityParameter(t *testing.T) {
	if got := (Config{}).CapabilityParameter(); got != "memory" {
		t.Errorf("got %q, want memory", got)
	}
	if got := (Config{Persist: true}).CapabilityParameter(); got != "memory,disk=encrypted" {
		t.Errorf("got %q, want memory,disk=encrypted", got)
	}
}
