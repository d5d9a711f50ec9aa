package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/kioku/internal/adapter"
	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/logger"

	"github.com/spf13/cobra"
)

var adapterCmd = &cobra.Command{
	Use:   "adapter",
	Short: "Fallback log-tailing ingestion",
	Long: `Adapters ingest external tool logs for integrations that cannot
speak the protocol. Configure which log a tool writes, then run the
poller alongside it.`,
}

var adapterConfigureCmd = &cobra.Command{
	Use:   "configure <tool>",
	Short: "Record which log file a tool's adapter should tail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		logPath, _ := cmd.Flags().GetString("log-path")
		if logPath == "" {
			return kerr.Validation("--log-path is required")
		}
		if err := registryHandle().SetAdapterLog(ctx, entry.ID, args[0], logPath); err != nil {
			return err
		}
		fmt.Printf("Adapter for %s will tail %s\n", args[0], logPath)
		return nil
	},
}

var adapterRunCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Run the configured adapter's poll loop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tool := args[0]
		entry, err := findProject(ctx, flagPath(cmd))
		if err != nil {
			return err
		}
		logPath, ok := entry.AdapterLogs[tool]
		if !ok {
			return kerr.Validation(fmt.Sprintf("no log configured for %s; run 'kioku adapter configure %s --log-path ...' first", tool, tool))
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
		observe := func(ctx context.Context) error {
			_, err := manager.Observe(ctx)
			return err
		}

		ctx = logger.WithProjectID(ctx, entry.ID)
		interval, _ := config.DurationOrDefault(cfg.Adapter.PollInterval, config.DefaultAdapterPollInterval)
		runner := adapter.NewRunner(adapter.NewTailer(j, tool, logPath), j, observe, interval, cfg.Adapter.CompactSchedule)
		return runner.Run(ctx)
	},
}

func init() {
	for _, c := range []*cobra.Command{adapterConfigureCmd, adapterRunCmd} {
		c.Flags().String("path", "", "project path (default: current directory)")
	}
	adapterConfigureCmd.Flags().String("log-path", "", "log file the tool writes")

	adapterCmd.AddCommand(adapterConfigureCmd)
	adapterCmd.AddCommand(adapterRunCmd)
	rootCmd.AddCommand(adapterCmd)
}
