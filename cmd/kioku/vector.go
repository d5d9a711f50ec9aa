package main

import (
	"fmt"
	"strconv"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/vector"

	"github.com/spf13/cobra"
)

var vectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Semantic search over recorded decisions",
}

var vectorEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the decision index for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		if err := registryHandle().SetVectorEnabled(ctx, entry.ID, true); err != nil {
			return err
		}

		ps, err := openProject(entry)
		if err != nil {
			return err
		}
		ix, err := vector.Open(entry.CanonicalPath, cfg.Vector)
		if err != nil {
			return err
		}
		indexed, err := ix.Sync(ctx, ps)
		if err != nil {
			return err
		}
		fmt.Printf("Vector index enabled; %d decision(s) indexed\n", indexed)
		return nil
	},
}

var vectorSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find decisions similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		if !entry.VectorEnabled {
			return kerr.Validation("vector indexing is not enabled for this project; run 'kioku vector enable' first")
		}

		ps, err := openProject(entry)
		if err != nil {
			return err
		}
		ix, err := vector.Open(entry.CanonicalPath, cfg.Vector)
		if err != nil {
			return err
		}
		if _, err := ix.Sync(ctx, ps); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		query := ""
		for i, arg := range args {
			if i > 0 {
				query += " "
			}
			query += arg
		}
		results, err := ix.Search(ctx, query, limit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matching decisions.")
			return nil
		}

		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, []string{
				strconv.FormatInt(r.EventID, 10),
				fmt.Sprintf("%.2f", r.Score),
				r.Summary,
			})
		}
		fmt.Println(renderTable([]string{"Event", "Score", "Decision"}, rows))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{vectorEnableCmd, vectorSearchCmd} {
		c.Flags().String("path", "", "project path (default: current directory)")
	}
	vectorSearchCmd.Flags().Int("limit", 5, "maximum results")

	vectorCmd.AddCommand(vectorEnableCmd)
	vectorCmd.AddCommand(vectorSearchCmd)
	rootCmd.AddCommand(vectorCmd)
}
