package main

import (
	"fmt"

	"github.com/harunnryd/kioku/internal/rules"
	"github.com/harunnryd/kioku/internal/session"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <tool>",
	Short: "Install the memory policy into a tool's rule surface",
	Long: `Writes the kioku usage policy where the named tool reads its rules:
CLAUDE.md for claude (plus a post-tool hook in .claude/settings.json),
AGENTS.md for codex, and .cursor/rules/kioku.mdc for cursor. Re-running
is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		tool := args[0]

		path, changed, err := rules.Install(entry.CanonicalPath, tool)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("Installed rules at %s\n", path)
		} else {
			fmt.Printf("Rules already present at %s\n", path)
		}

		if tool == session.AgentClaude {
			command := "kioku hook ingest --project-path " + entry.CanonicalPath + " --event tool_use"
			hooked, err := rules.EnsureClaudeHook(entry.CanonicalPath, command)
			if err != nil {
				return err
			}
			if hooked {
				fmt.Println("Installed post-tool hook in .claude/settings.json")
			}
		}
		return nil
	},
}

func init() {
	rulesCmd.Flags().String("path", "", "project path (default: current directory)")
	rootCmd.AddCommand(rulesCmd)
}
