package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session state, unresolved changes and recent reverts",
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

		st, err := manager.Status(ctx)
		if err != nil {
			return err
		}

		state := "idle"
		if st.Active != nil {
			state = fmt.Sprintf("recording (session %d, agent %s, since %s)",
				st.Active.ID, st.Active.AgentKind, st.Active.StartedAt.Format(time.RFC3339))
		}
		lastRevert := "never"
		if st.LastRevertAt != nil {
			lastRevert = st.LastRevertAt.Format(time.RFC3339)
		}

		rows := [][]string{
			{"Project", fmt.Sprintf("%s (%s)", entry.DisplayName, entry.ID)},
			{"State", state},
			{"Sessions", strconv.Itoa(st.SessionCount)},
			{"Unresolved files", strconv.Itoa(st.UnresolvedFiles)},
			{"Last revert", lastRevert},
			{"Last event id", strconv.FormatInt(st.LastEventID, 10)},
		}
		fmt.Println(renderTable([]string{"Field", "Value"}, rows))
		return nil
	},
}

func init() {
	statusCmd.Flags().String("path", "", "project path (default: current directory)")
	rootCmd.AddCommand(statusCmd)
}
