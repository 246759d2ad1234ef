package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/venuesync/internal/ui"
	"github.com/spf13/cobra"
)

var (
	sourcesFile string
	logFormat   string
	logLevel    string
	jsonOutput  bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "venuesync <command>",
	Short:         "Discover venues and their recurring events from listing sources",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := ui.NewLogger(os.Stderr, logFormat, logLevel)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		if !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sourcesFile, "sources", "", "sources file (default $VENUESYNC_SOURCES_FILE or sources.toml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", ui.LogFormatAuto, "log format (auto, text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "admin", Title: "Admin:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Pipeline
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(runOnceCmd)

	// Admin
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(venueCmd)

	// System
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
