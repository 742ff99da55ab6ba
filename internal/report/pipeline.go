package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gookit/color"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/pipeline"
)

// CostTable renders the cost report with one row per tracked tier, in tier
// order. Tiers with no usage in the window are shown as zero.
func CostTable(w io.Writer, costs *pipeline.CostReport, tiers []string) error {
	t := NewTable("TIER", "CREDITS", "METERING ROWS").
		SetAlign(1, AlignRight).
		SetAlign(2, AlignRight)

	var queries int64
	for _, name := range tiers {
		c, ok := costs.Get(name)
		if !ok {
			t.AddRow(name, color.Gray.Sprint("0.000"), color.Gray.Sprint("0"))
			continue
		}
		queries += c.Queries
		t.AddRow(name, fmt.Sprintf("%.3f", c.Credits), strconv.FormatInt(c.Queries, 10))
	}
	t.SetFooter(
		fmt.Sprintf("TOTAL (%d days)", catalog.CostWindowDays),
		fmt.Sprintf("%.3f", pipeline.TotalCredits(costs)),
		strconv.FormatInt(queries, 10),
	)

	return t.Render(w)
}

// StagedTablesTable renders the refresh watcher's observations.
func StagedTablesTable(w io.Writer, statuses []pipeline.StagedTableStatus) error {
	t := NewTable("STAGED TABLE", "TARGET LAG", "LAST REFRESH", "STATUS")

	for _, st := range statuses {
		last := "-"
		if st.LastRefreshTime.Valid {
			last = st.LastRefreshTime.Time.UTC().Format(time.RFC3339)
		}

		var status string
		switch {
		case st.Err != nil:
			status = color.Red.Sprint("ERROR")
		case st.Behind:
			status = color.Yellow.Sprint("BEHIND")
		default:
			status = color.Green.Sprint("OK")
		}

		t.AddRow(st.Entity.StagedDisplayName(), st.TargetLag, last, status)
	}

	return t.Render(w)
}

// EntitiesTable renders fact population results.
func EntitiesTable(w io.Writer, results []pipeline.EntityResult) error {
	t := NewTable("FACT TABLE", "ROWS", "STATUS").SetAlign(1, AlignRight)

	for _, r := range results {
		rows := "-"
		if r.Inserted && r.RowsInserted >= 0 {
			rows = strconv.FormatInt(r.RowsInserted, 10)
		}

		status := color.Green.Sprint("LOADED")
		if r.Err != nil {
			status = color.Red.Sprint("FAILED")
		}

		t.AddRow(r.Entity.FactDisplayName(), rows, status)
	}

	return t.Render(w)
}

// RunSummary writes a human-readable summary of a run outcome.
func RunSummary(w io.Writer, out *pipeline.RunOutcome, tiers []string) error {
	state := color.Green.Sprint(string(out.State))
	if !out.Success {
		state = color.Red.Sprint(string(out.State))
	}

	if _, err := fmt.Fprintf(w, "Run %s: %s in %.2fs\n", out.RunID, state, out.Duration.Seconds()); err != nil {
		return err
	}
	if out.Err != nil {
		if _, err := fmt.Fprintf(w, "Error: %v\n", out.Err); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Streams: %d, pending changes: %d\n\n", len(out.Streams), out.TotalPendingChanges); err != nil {
		return err
	}

	if len(out.StagedTables) > 0 {
		if err := StagedTablesTable(w, out.StagedTables); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if out.Populated {
		if err := EntitiesTable(w, out.Entities); err != nil {
			return err
		}
		fmt.Fprintln(w)
	} else if out.Success {
		fmt.Fprintln(w, "No pending changes; fact tables left as they were.")
		fmt.Fprintln(w)
	}

	if out.Success {
		if err := CostTable(w, out.Costs, tiers); err != nil {
			return err
		}
	}

	if n := len(out.Recovered); n > 0 {
		_, err := fmt.Fprintf(w, "\n%s\n", color.Yellow.Sprintf("%d recovered error(s); see audit log for details", n))
		return err
	}
	return nil
}
