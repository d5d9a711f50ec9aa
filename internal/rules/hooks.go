package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/natefinch/atomic"
)

// SameCommand reports whether two shell command lines invoke the same
// program with the same arguments, tokenizing both so quoting variants
// ("kioku hook ingest --event tool_use" vs `kioku 'hook' ingest
// --event "tool_use"`) compare equal. Untokenizable lines only match
// byte-for-byte.
func SameCommand(a, b string) bool {
	ta, errA := shlex.Split(a)
	tb, errB := shlex.Split(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

// EnsureClaudeHook installs a PostToolUse command hook into the
// project's .claude/settings.json, preserving everything else in the
// file. Returns whether the file changed; an equivalent command already
// installed (under any quoting) is left alone.
func EnsureClaudeHook(root, command string) (bool, error) {
	path := filepath.Join(root, ".claude", "settings.json")

	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for _, installed := range hookCommands(doc) {
		if SameCommand(installed, command) {
			return false, nil
		}
	}

	hooks, _ := doc["hooks"].(map[string]any)
	if hooks == nil {
		hooks = map[string]any{}
		doc["hooks"] = hooks
	}
	matchers, _ := hooks["PostToolUse"].([]any)
	hooks["PostToolUse"] = append(matchers, map[string]any{
		"matcher": "*",
		"hooks": []any{
			map[string]any{"type": "command", "command": command},
		},
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create settings dir: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return false, fmt.Errorf("write settings: %w", err)
	}
	return true, nil
}

// hookCommands collects every command string found under hooks.*.
func hookCommands(doc map[string]any) []string {
	var commands []string
	hooks, _ := doc["hooks"].(map[string]any)
	for _, event := range hooks {
		matchers, _ := event.([]any)
		for _, m := range matchers {
			matcher, _ := m.(map[string]any)
			inner, _ := matcher["hooks"].([]any)
			for _, h := range inner {
				hook, _ := h.(map[string]any)
				if cmd, ok := hook["command"].(string); ok {
					commands = append(commands, cmd)
				}
			}
		}
	}
	return commands
}
