package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// cursorFrontMatter is the metadata header Cursor expects at the top of
// an .mdc rule file.
type cursorFrontMatter struct {
	Description string `yaml:"description"`
	Globs       string `yaml:"globs"`
	AlwaysApply bool   `yaml:"alwaysApply"`
}

func installCursorRule(path string) (bool, error) {
	meta, err := yaml.Marshal(cursorFrontMatter{
		Description: "Use kioku project memory",
		Globs:       "**/*",
		AlwaysApply: true,
	})
	if err != nil {
		return false, fmt.Errorf("encode rule front-matter: %w", err)
	}

	content := "---\n" + string(meta) + "---\n\n" + Merge("", PolicyBlock())

	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create rules dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write cursor rule: %w", err)
	}
	return true, nil
}

// ParseCursorRule splits an .mdc file into its front-matter and body.
// Used by doctor to verify an installed rule still parses.
func ParseCursorRule(content string) (cursorFrontMatter, string, error) {
	var meta cursorFrontMatter
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return meta, "", fmt.Errorf("missing front-matter")
	}
	header, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return meta, "", fmt.Errorf("unterminated front-matter")
	}
	if err := yaml.Unmarshal([]byte(header+"\n"), &meta); err != nil {
		return meta, "", fmt.Errorf("parse front-matter: %w", err)
	}
	return meta, strings.TrimLeft(body, "\n"), nil
}
