package session

import (
	"fmt"
	"os"
	"path/filepath"

	kerr "github.com/harunnryd/kioku/internal/errors"
)

// Agent kinds form a closed set. "auto" is an input value only: it is
// resolved to a concrete kind before anything is stored.
const (
	AgentCursor = "cursor"
	AgentClaude = "claude"
	AgentCodex  = "codex"
	AgentAuto   = "auto"
)

var agentKinds = map[string]bool{
	AgentCursor: true,
	AgentClaude: true,
	AgentCodex:  true,
}

// ResolveAgentKind validates the requested kind and resolves "auto" by
// looking at which integration markers exist under the project root.
// Resolution order mirrors how specific the markers are; with no marker
// present it falls back to claude.
func ResolveAgentKind(requested, projectRoot string) (string, error) {
	switch {
	case requested == "" || requested == AgentAuto:
		return detectAgentKind(projectRoot), nil
	case agentKinds[requested]:
		return requested, nil
	default:
		return "", kerr.Validation(fmt.Sprintf("unknown agent kind %q (want cursor, claude, codex or auto)", requested))
	}
}

func detectAgentKind(projectRoot string) string {
	markers := []struct {
		path string
		kind string
	}{
		{".cursor", AgentCursor},
		{"CLAUDE.md", AgentClaude},
		{".claude", AgentClaude},
		{"AGENTS.md", AgentCodex},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(projectRoot, m.path)); err == nil {
			return m.kind
		}
	}
	return AgentClaude
}
