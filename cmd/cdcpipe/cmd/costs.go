package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/cdcpipe/internal/pipeline"
	"github.com/dbsmedya/cdcpipe/internal/report"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show 7-day credit usage per warehouse tier",
	Long: `Costs reads warehouse metering history for the three pipeline tiers
over the last 7 days and prints credits and metering rows per tier.

Example:
  cdcpipe costs --config cdcpipe.yaml`,
	SilenceUsage: true,
	RunE:         runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)
}

func runCosts(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	manager := warehouse.NewManager(&cfg.Warehouse)
	defer manager.Close()

	session, err := manager.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("warehouse connection failed: %w", err)
	}
	defer session.Close()

	tiers := cfg.Warehouse.Tiers.Names()
	accountant := pipeline.NewCostAccountant(tiers, log)

	costs, err := accountant.WarehouseCosts(ctx, session, warehouse.Tier(cfg.Warehouse.Tiers.Initial))
	if err != nil {
		return err
	}

	return report.CostTable(cmd.OutOrStdout(), costs, tiers)
}
