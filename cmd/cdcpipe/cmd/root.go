package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/report"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// defaultConfigFile is optional; any other --config path must exist.
const defaultConfigFile = "cdcpipe.yaml"

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
	schedule  string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "cdcpipe",
	Short: "CDC to Snowflake pipeline orchestrator",
	Long: `A scheduled orchestrator that moves clinical CDC changes through the
Snowflake staging layer into the analytics fact tables.

Each run:
  - Checks the CDC streams and counts pending changes
  - Checks the staged dynamic tables on the CDC tier
  - Reloads the fact tables on the interactive tier when changes exist
  - Reports 7-day credit usage per warehouse tier
  - Writes every step to the audit log`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			report.DisableColor()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile,
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().StringVar(&schedule, "schedule", "",
		"Override schedule name used for the run lock")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored table output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	Schedule  string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Schedule:  schedule,
	}
}

// loadConfig loads and validates the configuration with CLI overrides
// applied, and builds the logger from it.
func loadConfig() (*config.Config, *logger.Logger, error) {
	load := config.Load
	if GetConfigFile() == defaultConfigFile {
		load = config.LoadIfExists
	}

	cfg, err := load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.Schedule)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
