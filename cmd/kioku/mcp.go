package main

import (
	"os"

	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/server"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Protocol server for assistant processes",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory protocol over stdin/stdout",
	Long: `Answers protocol requests on stdin and writes responses to stdout;
logs go to stderr only. One instance serves one integrating tool; any
number of instances share a project through the store's locking.`,
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
		j := buildJournal(ps)
		manager, err := buildManager(ps, j)
		if err != nil {
			return err
		}

		srv := server.New(manager, j, cfg.Server, os.Stdin, os.Stdout)
		return srv.Serve(logger.WithProjectID(ctx, entry.ID))
	},
}

func init() {
	mcpServeCmd.Flags().String("project-path", "", "project to serve (default: current directory)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
