package privatemode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGateFailsOpenWhenFileAbsent(t *testing.T) {
	g := New(filepath.Join(t.TempDir(), "private_mode.json"))
	if !g.Enabled() {
		t.Fatal("expected gate to fail open (enabled) when flag file is absent")
	}
}

func TestGateFailsOpenWhenFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private_mode.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("writing corrupt flag file failed: %v", err)
	}
	g := New(path)
	if !g.Enabled() {
		t.Fatal("expected gate to fail open (enabled) when flag file is corrupt")
	}
}

func TestSetEnabledPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private_mode.json")
	g := New(path)

	if err := g.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if g.Enabled() {
		t.Fatal("expected gate to report disabled after SetEnabled(false)")
	}

	reloaded := New(path)
	if reloaded.Enabled() {
		t.Fatal("expected disabled state to persist across a fresh Gate instance")
	}

	if err := g.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled(true) failed: %v", err)
	}
	if !g.Enabled() {
		t.Fatal("expected gate to report enabled after SetEnabled(true)")
	}
}
