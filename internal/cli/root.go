// Package cli provides the command-line interface for camsift.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jhowland/camsift/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, loaded before any subcommand runs
	cfg config.Config

	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "camsift",
	Short: "Classify and categorize security-camera media with Gemini",
	Long: `Camsift triages a directory tree of security-camera images and videos.

A scan uploads each candidate file to the Gemini Files API, asks for a
free-text description, classifies that description against a small label
vocabulary, records every outcome durably, and copies accepted media into
per-label directories. Progress survives interruption: re-running a scan
picks up exactly where the previous run stopped.

A later assign pass embeds the stored descriptions and places each accepted
item into the nearest catalog category by cosine distance, with keyword
gating and a guaranteed catch-all category.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		logCleanup = cleanup

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(statusCmd)
}
