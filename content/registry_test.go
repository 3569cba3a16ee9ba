package content

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryServesInitialSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs", "one.md", "# One\n")

	reg := NewRegistry(root, time.Hour, testLogger())
	snap := reg.Current()
	if len(snap.Resources()) != 1 {
		t.Fatalf("Expected 1 resource, got %d", len(snap.Resources()))
	}
}

func TestRescanSwapsOnChange(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "docs", "one.md", "# One\n")

	reg := NewRegistry(root, time.Hour, testLogger())
	before := reg.Current()

	if reg.Rescan() {
		t.Fatal("Expected no swap without changes")
	}
	if reg.Current() != before {
		t.Fatal("Expected identical snapshot pointer without changes")
	}

	// Push the modtime forward explicitly so the change is visible even
	// on coarse filesystem clocks.
	if err := os.WriteFile(path, []byte("# One updated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if !reg.Rescan() {
		t.Fatal("Expected swap after file change")
	}
	after := reg.Current()
	if after == before {
		t.Fatal("Expected a fresh snapshot pointer")
	}
	res, _ := after.Resource("canton://docs/one")
	if res.Description != "One updated" {
		t.Fatalf("Expected reloaded content, got %q", res.Description)
	}

	// The old snapshot keeps serving its own view for in-flight readers.
	res, _ = before.Resource("canton://docs/one")
	if res.Description != "One" {
		t.Fatalf("Expected old snapshot unchanged, got %q", res.Description)
	}
}

func TestRescanPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs", "one.md", "# One\n")
	reg := NewRegistry(root, time.Hour, testLogger())

	writeFile(t, root, "patterns", "two.md", "# Two\n")
	if !reg.Rescan() {
		t.Fatal("Expected swap when a file appears")
	}
	if len(reg.Current().Resources()) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(reg.Current().Resources()))
	}

	if err := os.Remove(filepath.Join(root, "patterns", "two.md")); err != nil {
		t.Fatal(err)
	}
	if !reg.Rescan() {
		t.Fatal("Expected swap when a file disappears")
	}
	if len(reg.Current().Resources()) != 1 {
		t.Fatalf("Expected 1 resource after removal, got %d", len(reg.Current().Resources()))
	}
}
