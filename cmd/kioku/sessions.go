package main

import (
	"fmt"
	"strconv"
	"time"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/registry"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recording sessions",
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

		includeHidden, _ := cmd.Flags().GetBool("all")
		sessions, err := manager.Sessions(ctx, includeHidden)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded yet. Run 'kioku start' to begin.")
			return nil
		}

		rows := make([][]string, 0, len(sessions))
		for _, sess := range sessions {
			ended := "-"
			if sess.EndedAt != nil {
				ended = sess.EndedAt.Format(time.RFC3339)
			}
			predecessor := "-"
			if sess.PredecessorID != 0 {
				predecessor = strconv.FormatInt(sess.PredecessorID, 10)
			}
			status := sess.Status
			if sess.Hidden {
				status += " (hidden)"
			}
			rows = append(rows, []string{
				strconv.FormatInt(sess.ID, 10),
				status,
				sess.AgentKind,
				sess.StartedAt.Format(time.RFC3339),
				ended,
				predecessor,
			})
		}
		fmt.Println(renderTable([]string{"ID", "Status", "Agent", "Started", "Ended", "Resumed from"}, rows))
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a stopped session as a new linked session",
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

		sessionID, _ := cmd.Flags().GetInt64("session-id")
		agent, _ := cmd.Flags().GetString("agent")
		sess, err := manager.Resume(ctx, sessionID, agent)
		if err != nil {
			return err
		}
		fmt.Printf("Session %d recording, resumed from session %d\n", sess.ID, sess.PredecessorID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Hide a session, or soft-delete the whole project",
	Long: `With --session-id, hides one session from listings (rows and events
are retained). Without it, soft-deletes the project: memory stays on
disk and 'kioku start --reactivate' brings it back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetInt64("session-id")
		if sessionID != 0 {
			ps, err := openProject(entry)
			if err != nil {
				return err
			}
			manager, err := buildManager(ps, buildJournal(ps))
			if err != nil {
				return err
			}
			if err := manager.Delete(ctx, sessionID); err != nil {
				return err
			}
			fmt.Printf("Session %d hidden\n", sessionID)
			return nil
		}

		if err := registryHandle().MarkSoftDeleted(ctx, entry.ID); err != nil {
			return err
		}
		fmt.Printf("Project %s soft-deleted; memory retained at %s\n",
			entry.DisplayName, store.MemoryDir(entry.CanonicalPath))
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Irreversibly delete a project's memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}

		if !force {
			return kerr.Validation("purge is irreversible; pass --force to confirm")
		}
		ps, err := openProject(entry)
		if err != nil {
			return err
		}
		// Memory first, then the registry row: a crash in between
		// leaves a harmless entry that a later purge clears.
		if err := ps.Purge(ctx); err != nil {
			return err
		}
		if _, err := registryHandle().Purge(ctx, entry.ID, true); err != nil {
			return err
		}
		fmt.Printf("Purged all memory for %s\n", entry.DisplayName)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		reg := registryHandle()

		var (
			entries []registry.Entry
			err     error
		)
		if all {
			entries, err = reg.List(cmd.Context())
		} else {
			entries, err = reg.ListActive(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No projects registered. Run 'kioku init' inside a project.")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.DisplayName, e.Status, e.CanonicalPath})
		}
		fmt.Println(renderTable([]string{"Project", "Status", "Path"}, rows))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, resumeCmd, deleteCmd, purgeCmd} {
		c.Flags().String("path", "", "project path (default: current directory)")
	}
	sessionsCmd.Flags().Bool("all", false, "include hidden sessions")
	resumeCmd.Flags().Int64("session-id", 0, "stopped session to resume (default: most recent)")
	resumeCmd.Flags().String("agent", "auto", "agent kind for the new session")
	deleteCmd.Flags().Int64("session-id", 0, "session to hide")
	purgeCmd.Flags().Bool("force", false, "confirm irreversible deletion")
	listCmd.Flags().Bool("all", false, "include soft-deleted projects")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(listCmd)
}
