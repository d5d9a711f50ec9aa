package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kioku",
	Short: "Kioku project memory",
	Long: `Kioku gives AI coding assistants durable, shared memory of what
happened in a project: sessions, events, decisions and file reverts,
stored locally and readable by any integrating tool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(kerr.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $KIOKU_HOME/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
}
