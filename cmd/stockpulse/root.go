package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagEnvFile string
	flagSources string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stockpulse",
	Short: "Market news aggregation and sentiment service",
	Long: "stockpulse pulls market headlines from structured news APIs and RSS/Atom feeds,\n" +
		"deduplicates and classifies them, and derives a composite market sentiment score.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", flagEnvFile, err)
		}
		logger.Init()

		if flagSources != "" {
			os.Setenv("SOURCES_CONFIG_PATH", flagSources)
		}
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with credentials")
	rootCmd.PersistentFlags().StringVar(&flagSources, "sources", "", "path to sources YAML (overrides SOURCES_CONFIG_PATH)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(sentimentCmd)
	rootCmd.AddCommand(archiveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stockpulse %s (commit: %s)\n", version, commit)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
