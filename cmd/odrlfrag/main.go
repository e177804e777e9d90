package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/config"
	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

var (
	configPath string
	jsonOutput bool
	yamlOutput bool
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "odrlfrag <command>",
	Short:         "Fragment BPMN processes and analyze their ODRL policies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput && yamlOutput {
			return fmt.Errorf("--json and --yaml are mutually exclusive")
		}
		ui.Init()

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
			if err := c.Validate(); err != nil {
				return err
			}
		}
		cfg = c
		logger = newLogger(c.LogLevel)
		return nil
	},
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $ODRLFRAG_CONFIG or ~/.config/odrlfrag/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "output as YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "analysis", Title: "Analysis:"},
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
		&cobra.Group{ID: "store", Title: "Stored analyses and events:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Analysis
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reconstructCmd)

	// Catalog
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(strategiesCmd)

	// Stored analyses and events
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
