// Package content serves the read-only resource and prompt catalogues:
// static documents loaded from a content root on disk, addressed by URI
// (resources) or name (prompts), with atomic snapshot hot-reload.
package content

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Resource is one read-only document addressed by a canton:// URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
	Text        string `json:"-"`
}

// PromptArgument describes one substitutable argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Prompt is one reusable prompt template addressed by name.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
	Template    string           `json:"-"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders from args. Missing required
// arguments are an error; unknown placeholders are left verbatim.
func (p Prompt) Render(args map[string]string) (string, error) {
	for _, arg := range p.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			return "", fmt.Errorf("missing required argument %q", arg.Name)
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(p.Template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := args[name]; ok {
			return v
		}
		return m
	}), nil
}

// Snapshot is one immutable view of the content root. Registries swap
// whole snapshots; readers never observe partial updates.
type Snapshot struct {
	resources map[string]Resource
	prompts   map[string]Prompt
	// fingerprint maps source path to modtime in unix nanos, used by the
	// rescanner to detect changes.
	fingerprint map[string]int64
}

// Resource looks up one resource by URI.
func (s *Snapshot) Resource(uri string) (Resource, bool) {
	r, ok := s.resources[uri]
	return r, ok
}

// Resources lists all resources ordered by URI.
func (s *Snapshot) Resources() []Resource {
	out := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Prompt looks up one prompt by name.
func (s *Snapshot) Prompt(name string) (Prompt, bool) {
	p, ok := s.prompts[name]
	return p, ok
}

// Prompts lists all prompts ordered by name.
func (s *Snapshot) Prompts() []Prompt {
	out := make([]Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Snapshot) changedFrom(other *Snapshot) bool {
	if other == nil {
		return true
	}
	if len(s.fingerprint) != len(other.fingerprint) {
		return true
	}
	for path, mod := range s.fingerprint {
		if other.fingerprint[path] != mod {
			return true
		}
	}
	return false
}

// mimeForPath maps a source file extension to the served mime type.
func mimeForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".md"):
		return "text/markdown"
	case strings.HasSuffix(path, ".daml"):
		return "text/x-daml"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "text/yaml"
	default:
		return "text/plain"
	}
}
