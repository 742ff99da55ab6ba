package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/lock"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/pipeline"
	"github.com/dbsmedya/cdcpipe/internal/source"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the warehouse to ensure a run can succeed.

Checks performed:
  - Configuration syntax and required fields
  - Warehouse connectivity
  - Tier access (every warehouse tier can be selected)
  - Stream schema and catalog table existence
  - Replication slot health on the source database (when enabled)
  - Whether the schedule lock is currently held

Example:
  cdcpipe validate --config cdcpipe.yaml`,
	SilenceUsage: true,
	RunE:         runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting validation checks...")
	out := cmd.OutOrStdout()
	ctx := context.Background()

	fmt.Fprintf(out, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(out, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(out, "Stream schema: %s\n", cfg.Warehouse.Schema)
	fmt.Fprintf(out, "Tiers: %v\n\n", cfg.Warehouse.Tiers.Names())

	manager := warehouse.NewManager(&cfg.Warehouse)
	defer manager.Close()

	if err := manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	if err := manager.Ping(ctx); err != nil {
		return fmt.Errorf("warehouse connection failed: %w", err)
	}
	fmt.Fprintln(out, "✅ Warehouse reachable")

	session, err := manager.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("warehouse connection failed: %w", err)
	}
	defer session.Close()

	checker, err := pipeline.NewPreflightChecker(session, cfg.Warehouse.Schema, cfg.Warehouse.Tiers.Names(), log)
	if err != nil {
		return fmt.Errorf("failed to create preflight checker: %w", err)
	}

	hasErrors := false
	if err := checker.RunAllChecks(ctx); err != nil {
		fmt.Fprintf(out, "❌ Preflight checks failed: %v\n", err)
		hasErrors = true
	} else {
		fmt.Fprintln(out, "✅ Preflight checks passed")
	}

	if cfg.Source.Enabled {
		if err := validateSource(ctx, cmd, cfg.Source, log); err != nil {
			fmt.Fprintf(out, "❌ Source check failed: %v\n", err)
			hasErrors = true
		}
	}

	running, err := lock.IsScheduleRunning(ctx, cfg.Pipeline.LockDir, cfg.Pipeline.Schedule)
	switch {
	case err != nil:
		fmt.Fprintf(out, "⚠️  Could not check schedule lock: %v\n", err)
	case running:
		fmt.Fprintf(out, "⚠️  Schedule '%s' is currently running\n", cfg.Pipeline.Schedule)
	default:
		fmt.Fprintf(out, "✅ Schedule '%s' is idle\n", cfg.Pipeline.Schedule)
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintln(out, "\n=== Validation Complete ===")
	return nil
}

func validateSource(ctx context.Context, cmd *cobra.Command, cfg config.SourceConfig, log *logger.Logger) error {
	db, err := source.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	probe := source.NewSlotProbe(db, cfg, log)
	healthy, retained, err := probe.CheckSlot(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("replication slot %s unhealthy (retained WAL: %d bytes)", cfg.ReplicationSlot, retained)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Replication slot %s OK (%d bytes retained)\n", cfg.ReplicationSlot, retained)
	return nil
}
