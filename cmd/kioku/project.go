package main

import (
	"fmt"

	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/session"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the project and create its memory directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := registerProject(ctx, flagPath(cmd), false)
		if err != nil {
			return err
		}
		if _, err := openProject(entry); err != nil {
			return err
		}
		fmt.Printf("Initialized project memory for %s (%s)\n", entry.DisplayName, entry.ID)
		fmt.Printf("Memory directory: %s\n", store.MemoryDir(entry.CanonicalPath))
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a recording session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reactivate, _ := cmd.Flags().GetBool("reactivate")
		entry, err := registerProject(ctx, flagPath(cmd), reactivate)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("name"); name != "" && name != entry.DisplayName {
			if err := registryHandle().SetDisplayName(ctx, entry.ID, name); err != nil {
				return err
			}
			entry.DisplayName = name
		}

		ps, err := openProject(entry)
		if err != nil {
			return err
		}
		j := buildJournal(ps)
		manager, err := buildManager(ps, j)
		if err != nil {
			return err
		}

		agent, _ := cmd.Flags().GetString("agent")
		ctx = logger.WithProjectID(ctx, entry.ID)
		sess, created, err := manager.Start(ctx, session.StartOptions{AgentKind: agent, Source: "cli"})
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Recording session %d started (agent: %s)\n", sess.ID, sess.AgentKind)
		} else {
			fmt.Printf("Session %d is already recording (agent: %s)\n", sess.ID, sess.AgentKind)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active recording session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		ps, err := openProject(entry)
		if err != nil {
			return err
		}
		manager, err := buildManager(ps, buildJournal(ps))
		if err != nil {
			return err
		}

		sess, err := manager.Stop(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Session %d stopped after %s\n", sess.ID, sess.EndedAt.Sub(sess.StartedAt).Round(1e9))
		return nil
	},
}

var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Print the project's canonical path and memory location",
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := findProject(cmd.Context(), flagPath(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("Project:  %s (%s)\n", entry.DisplayName, entry.ID)
		fmt.Printf("Path:     %s\n", entry.CanonicalPath)
		fmt.Printf("Memory:   %s\n", store.MemoryDir(entry.CanonicalPath))
		fmt.Printf("Status:   %s\n", entry.Status)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{initCmd, startCmd, stopCmd, whereCmd} {
		c.Flags().String("path", "", "project path (default: current directory)")
	}
	startCmd.Flags().String("name", "", "display name for the project")
	startCmd.Flags().String("agent", session.AgentAuto, "agent kind (cursor, claude, codex, auto)")
	startCmd.Flags().Bool("reactivate", false, "reactivate a soft-deleted project")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(whereCmd)
}
