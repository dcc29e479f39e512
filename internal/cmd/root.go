// Package cmd implements the orchd command line interface.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	rootDir    string
	logLevel   string
	quiet      bool
)

// rootCmd is the base command; subcommands attach to it.
var rootCmd = &cobra.Command{
	Use:   "orchd",
	Short: "Local agent orchestration daemon",
	Long: `orchd watches a workspace inbox for markdown requests, turns them into
execution plans with LLM agents, and runs approved plans through a DAG
flow engine. All activity lands in a durable journal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// A .env next to the working directory supplies provider API keys.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "workspace root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
