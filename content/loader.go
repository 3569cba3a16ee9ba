package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// resourceDirs maps content-root subdirectories to the resource type
// segment of the canton:// URI.
var resourceDirs = []string{"patterns", "anti_patterns", "rules", "docs"}

// promptsDir holds prompt template files under the content root.
const promptsDir = "prompts"

// LoadSnapshot scans the content root and builds a fresh snapshot. Missing
// subdirectories are fine (an empty catalogue is valid); unreadable or
// malformed files are skipped with the returned warnings.
func LoadSnapshot(root string) (*Snapshot, []error) {
	snap := &Snapshot{
		resources:   make(map[string]Resource),
		prompts:     make(map[string]Prompt),
		fingerprint: make(map[string]int64),
	}
	var warnings []error

	for _, dir := range resourceDirs {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			if !os.IsNotExist(err) {
				warnings = append(warnings, fmt.Errorf("reading %s: %w", dir, err))
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(root, dir, entry.Name())
			res, mod, err := loadResource(dir, path, entry.Name())
			if err != nil {
				warnings = append(warnings, err)
				continue
			}
			snap.resources[res.URI] = res
			snap.fingerprint[path] = mod
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, promptsDir))
	if err != nil {
		if !os.IsNotExist(err) {
			warnings = append(warnings, fmt.Errorf("reading prompts: %w", err))
		}
		return snap, warnings
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(root, promptsDir, entry.Name())
		prompt, mod, err := loadPrompt(path, entry.Name())
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		snap.prompts[prompt.Name] = prompt
		snap.fingerprint[path] = mod
	}

	return snap, warnings
}

func loadResource(dir, path, filename string) (Resource, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Resource{}, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Resource{}, 0, fmt.Errorf("read %s: %w", path, err)
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	text := string(raw)
	return Resource{
		URI:         fmt.Sprintf("canton://%s/%s", dir, name),
		Name:        name,
		Description: describe(text, name),
		MimeType:    mimeForPath(path),
		Text:        text,
	}, info.ModTime().UnixNano(), nil
}

// promptHeader is the YAML block between --- markers at the top of a
// prompt template file.
type promptHeader struct {
	Description string `yaml:"description"`
	Arguments   []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Required    bool   `yaml:"required"`
	} `yaml:"arguments"`
}

func loadPrompt(path, filename string) (Prompt, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Prompt{}, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, 0, fmt.Errorf("read %s: %w", path, err)
	}

	header, body, err := splitFrontMatter(string(raw))
	if err != nil {
		return Prompt{}, 0, fmt.Errorf("prompt %s: %w", filename, err)
	}

	var parsed promptHeader
	if header != "" {
		if err := yaml.Unmarshal([]byte(header), &parsed); err != nil {
			return Prompt{}, 0, fmt.Errorf("prompt %s header: %w", filename, err)
		}
	}

	name := strings.TrimSuffix(filename, ".md")
	prompt := Prompt{
		Name:        name,
		Description: parsed.Description,
		Template:    strings.TrimSpace(body),
	}
	if prompt.Description == "" {
		prompt.Description = describe(body, name)
	}
	for _, arg := range parsed.Arguments {
		prompt.Arguments = append(prompt.Arguments, PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return prompt, info.ModTime().UnixNano(), nil
}

// splitFrontMatter separates an optional leading `---` block from the
// body. Files without front matter return an empty header.
func splitFrontMatter(text string) (header, body string, err error) {
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return "", text, nil
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(text, "---\r\n"), "---\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated front matter")
	}
	header = rest[:idx]
	body = rest[idx+len("\n---"):]
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r\n"), "\n")
	return header, body, nil
}

// describe derives a short description from the first markdown heading,
// falling back to the first non-empty line, then the name.
func describe(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "# "))
	}
	return fallback
}
