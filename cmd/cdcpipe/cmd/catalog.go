package cmd

import (
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/report"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the tables the pipeline reads and writes",
	Long: `Catalog prints the fixed set of clinical entities with their staged
dynamic table and the analytics fact table each one loads into. Pass entity
names to show only those.

No configuration or warehouse connection is needed.

Example:
  cdcpipe catalog
  cdcpipe catalog patients lab_results`,
	Args: cobra.ArbitraryArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	entities, err := selectEntities(args)
	if err != nil {
		return err
	}
	return writeCatalog(cmd.OutOrStdout(), entities)
}

// selectEntities resolves entity names, or returns the whole catalog when
// none are given.
func selectEntities(names []string) ([]catalog.Entity, error) {
	if len(names) == 0 {
		return catalog.StagedEntities(), nil
	}

	entities := make([]catalog.Entity, 0, len(names))
	for _, name := range names {
		e, ok := catalog.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown entity '%s'", name)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func writeCatalog(w io.Writer, entities []catalog.Entity) error {
	t := report.NewTable("ENTITY", "STAGED TABLE", "FACT TABLE")
	for _, e := range entities {
		fact := e.FactDisplayName()
		if !e.HasFact() {
			fact = color.Gray.Sprint("(not populated)")
		}
		t.AddRow(e.Name, e.StagedDisplayName(), fact)
	}
	if err := t.Render(w); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nAudit log: %s\nCost window: %d days\n", catalog.SchemaAudit+"."+catalog.AuditTable, catalog.CostWindowDays)
	return err
}
