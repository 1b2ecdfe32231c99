// Command upchuck runs the content curation service and its admin tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/logger"
)

var (
	cfg         *config.Config
	configPath  string
	closeLogger logger.Closer
)

var rootCmd = &cobra.Command{
	Use:   "upchuck",
	Short: "Agent-driven content curation for note vaults",
	Long: "Watches a raw note vault, runs curation agents over changed files, " +
		"records extracted data and routes elevation proposals through human review.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		log, closer := logger.New(cfg.Logging)
		slog.SetDefault(log)
		closeLogger = closer
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if closeLogger != nil {
			closeLogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
