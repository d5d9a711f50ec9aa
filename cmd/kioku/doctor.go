package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/rules"
	"github.com/harunnryd/kioku/internal/session"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/spf13/cobra"
)

type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the health of the memory setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		checks := []doctorCheck{checkHome(), checkRegistry(ctx)}
		checks = append(checks, checkProject(ctx, flagPath(cmd))...)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			out, err := json.MarshalIndent(checks, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		} else {
			rows := make([][]string, 0, len(checks))
			for _, c := range checks {
				mark := "ok"
				if !c.OK {
					mark = "FAIL"
				}
				rows = append(rows, []string{c.Name, mark, c.Detail})
			}
			fmt.Println(renderTable([]string{"Check", "Result", "Detail"}, rows))
		}

		for _, c := range checks {
			if !c.OK {
				os.Exit(1)
			}
		}
		return nil
	},
}

func checkHome() doctorCheck {
	home, err := config.HomeDir()
	if err != nil {
		return doctorCheck{Name: "home directory", Detail: err.Error()}
	}
	return doctorCheck{Name: "home directory", OK: true, Detail: home}
}

func checkRegistry(ctx context.Context) doctorCheck {
	entries, err := registryHandle().List(ctx)
	if err != nil {
		return doctorCheck{Name: "registry", Detail: err.Error()}
	}
	return doctorCheck{Name: "registry", OK: true, Detail: fmt.Sprintf("%d project(s)", len(entries))}
}

func checkProject(ctx context.Context, path string) []doctorCheck {
	entry, err := findProject(ctx, path)
	if err != nil {
		return []doctorCheck{{Name: "project", Detail: fmt.Sprintf("not registered: %v", err)}}
	}
	checks := []doctorCheck{{Name: "project", OK: true, Detail: entry.CanonicalPath}}

	ps, err := openProject(entry)
	if err != nil {
		return append(checks, doctorCheck{Name: "store", Detail: err.Error()})
	}

	var eventCount int
	err = ps.View(ctx, func(state *store.State) error {
		return nil
	})
	if err != nil {
		checks = append(checks, doctorCheck{Name: "store", Detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "store", OK: true, Detail: "state loads, lock acquirable"})
	}

	events, err := buildJournal(ps).Query(ctx, journal.Filter{MaxEvents: 1000000, Ascending: true})
	if err != nil {
		checks = append(checks, doctorCheck{Name: "journal", Detail: err.Error()})
	} else {
		eventCount = len(events)
		checks = append(checks, doctorCheck{Name: "journal", OK: true, Detail: fmt.Sprintf("%d event(s)", eventCount)})
	}

	for _, tool := range []string{session.AgentCursor, session.AgentClaude, session.AgentCodex} {
		checks = append(checks, checkRuleSurface(entry.CanonicalPath, tool))
	}

	for tool, logPath := range entry.AdapterLogs {
		name := "adapter log (" + tool + ")"
		if _, err := os.Stat(logPath); err != nil {
			checks = append(checks, doctorCheck{Name: name, Detail: fmt.Sprintf("%s unreadable: %v", logPath, err)})
		} else {
			checks = append(checks, doctorCheck{Name: name, OK: true, Detail: logPath})
		}
	}
	return checks
}

func checkRuleSurface(root, tool string) doctorCheck {
	name := "rules (" + tool + ")"
	path, err := rules.InstallPath(root, tool)
	if err != nil {
		return doctorCheck{Name: name, Detail: err.Error()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doctorCheck{Name: name, OK: true, Detail: "not installed"}
	}
	content := string(data)
	if tool == session.AgentCursor {
		if _, body, perr := rules.ParseCursorRule(content); perr != nil {
			return doctorCheck{Name: name, Detail: perr.Error()}
		} else {
			content = body
		}
	}
	if !rules.HasBlock(content) {
		return doctorCheck{Name: name, Detail: path + " exists but carries no kioku block"}
	}
	return doctorCheck{Name: name, OK: true, Detail: path}
}

func init() {
	doctorCmd.Flags().String("path", "", "project path (default: current directory)")
	doctorCmd.Flags().Bool("json", false, "machine-readable output")
	rootCmd.AddCommand(doctorCmd)
}
