package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/cdcpipe/internal/lock"
	"github.com/dbsmedya/cdcpipe/internal/pipeline"
	"github.com/dbsmedya/cdcpipe/internal/report"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Run executes one pipeline run against the configured warehouse.

The run follows these steps:
  1. Check CDC stream status and count pending changes
  2. Check the staged dynamic tables on the CDC tier
  3. Reload the fact tables on the interactive tier (only with pending changes)
  4. Report 7-day warehouse credit usage

The process exits 1 when the warehouse cannot be reached or a stage aborts
the run. Degraded stages are recorded in the audit log and do not fail it.

Example:
  cdcpipe run --config cdcpipe.yaml`,
	SilenceUsage: true,
	RunE:         runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Run even if the schedule lock is held by another run (use with caution)")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Infow("Starting pipeline run",
		"schedule", cfg.Pipeline.Schedule,
		"config", GetConfigFile(),
	)

	ctx, stop := warehouse.CancelOnSignal(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - aborting run", "signal", sig.String())
	})
	defer stop()

	manager := warehouse.NewManager(&cfg.Warehouse)
	defer manager.Close()

	orch, err := pipeline.NewOrchestrator(cfg, manager, pipeline.NewComponents(cfg, log), log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	execute := func() error {
		out, runErr := orch.Run(ctx)
		if err := report.RunSummary(cmd.OutOrStdout(), out, cfg.Warehouse.Tiers.Names()); err != nil {
			log.Warnf("Failed to write run summary: %v", err)
		}
		return runErr
	}

	if runForce {
		log.Warnw("Skipping schedule lock (--force flag used)", "schedule", cfg.Pipeline.Schedule)
		return execute()
	}

	scheduleLock := lock.NewScheduleLock(cfg.Pipeline.LockDir, cfg.Pipeline.Schedule)
	err = scheduleLock.WithLock(ctx, lock.TimeoutShort, execute)
	if errors.Is(err, lock.ErrLockTimeout) {
		return fmt.Errorf("schedule '%s' is already running (use --force to override): %w", cfg.Pipeline.Schedule, err)
	}
	return err
}
