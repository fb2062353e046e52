package main

import (
	"os"

	"summa/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "summa",
		Short: "Summarize text and translate it with a tool-calling LLM agent",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logLevel)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/summa/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default $LOG_LEVEL or info)")

	rootCmd.AddCommand(
		newSummarizeCmd(),
		newTranslateCmd(),
		newChainCmd(),
		newRunCmd(),
		newServeCmd(),
		newClientCmd(),
		newHistoryCmd(),
		newSetupCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
