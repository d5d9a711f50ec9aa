package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Canonical resolves a project path to its identity form: expanded,
// absolute, symlink-resolved, cleaned. Two invocations from different
// working directories must produce the same string for the same project.
func Canonical(path string) (string, error) {
	expanded, err := Expand(path)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		expanded = "."
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Path may not exist yet (init before mkdir). Resolve the
			// longest existing ancestor and rejoin the remainder.
			return canonicalMissing(abs)
		}
		return "", fmt.Errorf("resolve symlinks: %w", err)
	}
	return filepath.Clean(resolved), nil
}

func canonicalMissing(abs string) (string, error) {
	dir := abs
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if _, err := os.Stat(dir); err == nil {
			break
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return filepath.Clean(filepath.Join(append([]string{resolved}, tail...)...)), nil
}
