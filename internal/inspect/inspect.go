// Package inspect produces lightweight repository summaries: what sits
// at the top level, which ecosystem marker files exist, and roughly how
// many files the tree holds. It never reads file contents except
// through Scan, and never leaves the given root.
package inspect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harunnryd/kioku/internal/config"

	"github.com/gobwas/glob"
)

// Inspector walks project trees honoring the configured ignore globs.
type Inspector struct {
	cfg     config.InspectConfig
	ignores []glob.Glob
}

func New(cfg config.InspectConfig) (*Inspector, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = config.DefaultInspectMaxEntries
	}
	ignores := make([]glob.Glob, 0, len(cfg.IgnoreGlobs))
	for _, pattern := range cfg.IgnoreGlobs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore glob %q: %w", pattern, err)
		}
		ignores = append(ignores, g)
	}
	return &Inspector{cfg: cfg, ignores: ignores}, nil
}

// Ignored reports whether a path component is excluded from walks.
func (in *Inspector) Ignored(name string) bool {
	for _, g := range in.ignores {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Snapshot is the repository summary captured when a session starts.
type Snapshot struct {
	Root            string   `json:"root"`
	TopLevel        []string `json:"top_level"`
	KeyFiles        []string `json:"key_files"`
	ApproxFileCount int      `json:"approx_file_count"`
	Truncated       bool     `json:"truncated,omitempty"`
}

// Summary renders the snapshot as one event-sized line.
func (s Snapshot) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository snapshot of %s:", filepath.Base(s.Root))
	if len(s.KeyFiles) > 0 {
		fmt.Fprintf(&b, " key files %s;", strings.Join(s.KeyFiles, ", "))
	}
	if len(s.TopLevel) > 0 {
		fmt.Fprintf(&b, " top-level %s;", strings.Join(s.TopLevel, ", "))
	}
	approx := fmt.Sprintf("~%d files", s.ApproxFileCount)
	if s.Truncated {
		approx = fmt.Sprintf(">%d files", s.ApproxFileCount)
	}
	b.WriteString(" " + approx)
	return b.String()
}

// Snapshot summarizes the tree under root.
func (in *Inspector) Snapshot(root string) (Snapshot, error) {
	snap := Snapshot{Root: root}

	entries, err := os.ReadDir(root)
	if err != nil {
		return snap, fmt.Errorf("read project root: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if in.Ignored(name) {
			continue
		}
		if entry.IsDir() {
			name += "/"
		}
		snap.TopLevel = append(snap.TopLevel, name)
	}
	sort.Strings(snap.TopLevel)

	for _, key := range in.cfg.KeyFiles {
		if _, err := os.Stat(filepath.Join(root, key)); err == nil {
			snap.KeyFiles = append(snap.KeyFiles, key)
		}
	}

	count := 0
	err = in.walk(context.Background(), root, func(string, fs.DirEntry) error {
		count++
		if count >= in.cfg.MaxEntries {
			snap.Truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return snap, err
	}
	snap.ApproxFileCount = count
	return snap, nil
}

// Scan walks the tree and hands each regular file's relative path and
// content to fn. The walk respects the ignore globs and the entry cap;
// unreadable files are skipped, not fatal.
func (in *Inspector) Scan(ctx context.Context, root string, fn func(relPath string, content []byte) error) error {
	seen := 0
	return in.walk(ctx, root, func(path string, entry fs.DirEntry) error {
		seen++
		if seen > in.cfg.MaxEntries {
			return fs.SkipAll
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		return fn(filepath.ToSlash(rel), content)
	})
}

// KeyFilePaths returns the configured key files present under root,
// relative to it.
func (in *Inspector) KeyFilePaths(root string) []string {
	var present []string
	for _, key := range in.cfg.KeyFiles {
		if _, err := os.Stat(filepath.Join(root, key)); err == nil {
			present = append(present, key)
		}
	}
	return present
}

func (in *Inspector) walk(ctx context.Context, root string, fn func(path string, entry fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees reduce the approximation, nothing more.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != root && in.Ignored(name) {
				return fs.SkipDir
			}
			return nil
		}
		if in.Ignored(name) {
			return nil
		}
		return fn(path, entry)
	})
}
