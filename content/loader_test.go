package content

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(parts[len(parts)-1]), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSnapshotResources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "patterns", "propose_accept.md", "# Propose-Accept\n\nBody.\n")
	writeFile(t, root, "anti_patterns", "missing_signatory.daml", "template Bad where\n")
	writeFile(t, root, "rules", "authorization.yaml", "rule: all-signatories\n")
	writeFile(t, root, "docs", "notes.txt", "plain notes\n")

	snap, warnings := LoadSnapshot(root)
	if len(warnings) != 0 {
		t.Fatalf("Expected no warnings, got %v", warnings)
	}
	if len(snap.Resources()) != 4 {
		t.Fatalf("Expected 4 resources, got %d", len(snap.Resources()))
	}

	res, ok := snap.Resource("canton://patterns/propose_accept")
	if !ok {
		t.Fatal("Expected patterns resource by URI")
	}
	if res.MimeType != "text/markdown" {
		t.Fatalf("Expected text/markdown, got %q", res.MimeType)
	}
	if res.Description != "Propose-Accept" {
		t.Fatalf("Expected heading-derived description, got %q", res.Description)
	}

	res, _ = snap.Resource("canton://anti_patterns/missing_signatory")
	if res.MimeType != "text/x-daml" {
		t.Fatalf("Expected text/x-daml, got %q", res.MimeType)
	}
	res, _ = snap.Resource("canton://rules/authorization")
	if res.MimeType != "text/yaml" {
		t.Fatalf("Expected text/yaml, got %q", res.MimeType)
	}
	res, _ = snap.Resource("canton://docs/notes")
	if res.MimeType != "text/plain" {
		t.Fatalf("Expected text/plain, got %q", res.MimeType)
	}
}

func TestLoadSnapshotEmptyRoot(t *testing.T) {
	snap, warnings := LoadSnapshot(t.TempDir())
	if len(warnings) != 0 {
		t.Fatalf("Expected missing subdirectories to be fine, got %v", warnings)
	}
	if len(snap.Resources()) != 0 || len(snap.Prompts()) != 0 {
		t.Fatal("Expected empty catalogue")
	}
}

func TestLoadPromptWithFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prompts", "design_review.md",
		"---\ndescription: Review a DAML design\narguments:\n  - name: code\n    description: the source\n    required: true\n  - name: focus\n    required: false\n---\nReview:\n\n{{code}} ({{focus}})\n")

	snap, warnings := LoadSnapshot(root)
	if len(warnings) != 0 {
		t.Fatalf("Expected no warnings, got %v", warnings)
	}

	prompt, ok := snap.Prompt("design_review")
	if !ok {
		t.Fatal("Expected prompt by name")
	}
	if prompt.Description != "Review a DAML design" {
		t.Fatalf("Expected header description, got %q", prompt.Description)
	}
	if len(prompt.Arguments) != 2 {
		t.Fatalf("Expected 2 arguments, got %d", len(prompt.Arguments))
	}
	if !prompt.Arguments[0].Required || prompt.Arguments[1].Required {
		t.Fatalf("Expected required flags preserved, got %+v", prompt.Arguments)
	}

	text, err := prompt.Render(map[string]string{"code": "template X"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if text != "Review:\n\ntemplate X ({{focus}})" {
		t.Fatalf("Expected substitution with unknown placeholders kept, got %q", text)
	}

	if _, err := prompt.Render(nil); err == nil {
		t.Fatal("Expected missing required argument to error")
	}
}

func TestLoadPromptWithoutFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prompts", "quick.md", "# Quick prompt\n\nJust text.\n")

	snap, _ := LoadSnapshot(root)
	prompt, ok := snap.Prompt("quick")
	if !ok {
		t.Fatal("Expected prompt loaded")
	}
	if prompt.Description != "Quick prompt" {
		t.Fatalf("Expected fallback description, got %q", prompt.Description)
	}
	if len(prompt.Arguments) != 0 {
		t.Fatalf("Expected no arguments, got %+v", prompt.Arguments)
	}
}

func TestLoadPromptMalformedHeaderIsWarning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "prompts", "broken.md", "---\ndescription: [unclosed\n---\nbody\n")
	writeFile(t, root, "prompts", "fine.md", "ok body\n")

	snap, warnings := LoadSnapshot(root)
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", warnings)
	}
	if _, ok := snap.Prompt("fine"); !ok {
		t.Fatal("Expected the healthy prompt to survive")
	}
	if _, ok := snap.Prompt("broken"); ok {
		t.Fatal("Expected the broken prompt to be skipped")
	}
}
