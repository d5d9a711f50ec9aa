package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/harunnryd/kioku/internal/adapter"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "One-shot ingestion for editor hooks",
}

var hookIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest hook payload lines from stdin as events",
	Long: `Reads lines from stdin (JSON records or role-prefixed text), parses
them the same way adapters parse tool logs, and appends them under the
active recording session. Designed to be wired as an editor's post-tool
hook; it exits quickly and never blocks the editor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("project-path")
		if path == "" {
			path = "."
		}
		entry, err := findProject(ctx, path)
		if err != nil {
			return err
		}
		ps, err := openProject(entry)
		if err != nil {
			return err
		}

		eventType, _ := cmd.Flags().GetString("event")
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = "hook"
		}

		var drafts []journal.Draft
		skipped := 0
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			draft, ok := adapter.ParseLine(scanner.Text(), source)
			if !ok {
				skipped++
				continue
			}
			if eventType != "" {
				draft.Type = journal.SanitizeType(eventType)
			}
			drafts = append(drafts, draft)
		}
		if err := scanner.Err(); err != nil {
			return kerr.AdapterIO(fmt.Sprintf("read hook payload: %v", err))
		}
		if len(drafts) == 0 {
			fmt.Printf("Nothing to ingest (%d line(s) skipped)\n", skipped)
			return nil
		}

		jcfg := journalConfig()
		appended := 0
		err = ps.Update(ctx, func(tx *store.Tx) error {
			active := tx.State.ActiveRecording()
			if active == nil {
				return kerr.Wrap(kerr.ErrNoActiveSession, "hook ingest")
			}
			for _, draft := range drafts {
				if _, err := journal.AppendTx(tx, active.ID, draft, jcfg); err != nil {
					return err
				}
				appended++
			}
			tx.State.SetSource(source, "available", "hook ingest", tx.Now)
			return nil
		})
		if err != nil {
			return err
		}

		// The hook fires right after a tool touched the tree, so this
		// is the natural moment to diff it against the tracked hashes.
		manager, err := buildManager(ps, journal.New(ps, jcfg))
		if err != nil {
			return err
		}
		rep, err := manager.Observe(logger.WithProjectID(ctx, entry.ID))
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %d event(s), skipped %d line(s)\n", appended, skipped)
		if rep.Reverts > 0 {
			fmt.Printf("Detected %d revert(s) on disk\n", rep.Reverts)
		}
		return nil
	},
}

func init() {
	hookIngestCmd.Flags().String("project-path", "", "project receiving the events (default: current directory)")
	hookIngestCmd.Flags().String("event", "", "force the event type for every ingested line")
	hookIngestCmd.Flags().String("source", "", "attribution tag (default: hook)")
	hookCmd.AddCommand(hookIngestCmd)
	rootCmd.AddCommand(hookCmd)
}
