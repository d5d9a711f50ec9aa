// Package rules installs the memory-usage policy into each assistant's
// configuration surface: a marker-delimited text block in CLAUDE.md or
// AGENTS.md, a rule file with YAML front-matter for Cursor, and a
// post-tool hook in Claude's settings. Every install is idempotent;
// running it twice changes nothing.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/session"
)

const (
	beginMarker = "<!-- kioku:begin -->"
	endMarker   = "<!-- kioku:end -->"
)

// PolicyBlock is the text block agents read. It tells them how to feed
// and consult the project memory.
func PolicyBlock() string {
	return strings.TrimSpace(`
## Project memory

This project records durable memory with kioku. At the start of a task,
read recent context with ` + "`kioku status`" + ` or the get_context protocol
method. Record user goals as user_intent events, durable choices as
decision_made events, and progress as task_status events. Summaries are
short derived text; never paste raw conversation into them.
`) + "\n"
}

// HasBlock reports whether content already carries a kioku block.
func HasBlock(content string) bool {
	return strings.Contains(content, beginMarker) && strings.Contains(content, endMarker)
}

// Merge returns content with exactly one kioku block holding block. An
// existing block is replaced in place; otherwise the block is appended.
func Merge(content, block string) string {
	wrapped := beginMarker + "\n" + strings.TrimSpace(block) + "\n" + endMarker + "\n"

	if HasBlock(content) {
		start := strings.Index(content, beginMarker)
		end := strings.Index(content, endMarker) + len(endMarker)
		// Swallow the trailing newline the old block owned.
		if end < len(content) && content[end] == '\n' {
			end++
		}
		return content[:start] + wrapped + content[end:]
	}

	if content == "" {
		return wrapped
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + wrapped
}

// InstallPath returns where the named tool's rule text lives under a
// project root.
func InstallPath(root, tool string) (string, error) {
	switch tool {
	case session.AgentClaude:
		return filepath.Join(root, "CLAUDE.md"), nil
	case session.AgentCodex:
		return filepath.Join(root, "AGENTS.md"), nil
	case session.AgentCursor:
		return filepath.Join(root, ".cursor", "rules", "kioku.mdc"), nil
	default:
		return "", kerr.Validation(fmt.Sprintf("no rule surface for tool %q", tool))
	}
}

// Install writes the policy into the tool's rule surface. Returns the
// written path and whether anything changed.
func Install(root, tool string) (string, bool, error) {
	path, err := InstallPath(root, tool)
	if err != nil {
		return "", false, err
	}

	if tool == session.AgentCursor {
		changed, err := installCursorRule(path)
		return path, changed, err
	}

	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	}
	merged := Merge(existing, PolicyBlock())
	if merged == existing {
		return path, false, nil
	}
	if err := os.WriteFile(path, []byte(merged), 0644); err != nil {
		return path, false, fmt.Errorf("write rules to %s: %w", path, err)
	}
	return path, true, nil
}
