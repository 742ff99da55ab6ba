package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// TierCost is the trailing-window usage of one tier.
type TierCost struct {
	Credits float64 `json:"credits"`
	Queries int64   `json:"queries"`
}

// CostReport maps tier name to usage, in tier order.
type CostReport = orderedmap.OrderedMap[string, TierCost]

// CostAccountant reports credit usage for the tracked tiers.
type CostAccountant struct {
	tiers  []string
	logger *logger.Logger
}

// NewCostAccountant creates an accountant for tiers, given in report order.
func NewCostAccountant(tiers []string, log *logger.Logger) *CostAccountant {
	if log == nil {
		log = logger.NewDefault()
	}
	normalized := make([]string, len(tiers))
	for i, name := range tiers {
		normalized[i] = sqlutil.NormalizeIdentifier(name)
	}
	return &CostAccountant{tiers: normalized, logger: log}
}

func (c *CostAccountant) costQuery() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.tiers)), ", ")
	return fmt.Sprintf(`SELECT warehouse_name, SUM(credits_used) AS total_credits, COUNT(*) AS query_count
FROM SNOWFLAKE.ACCOUNT_USAGE.WAREHOUSE_METERING_HISTORY
WHERE start_time >= DATEADD(day, -%d, CURRENT_TIMESTAMP())
AND warehouse_name IN (%s)
GROUP BY warehouse_name`, catalog.CostWindowDays, placeholders)
}

// WarehouseCosts sums credits and counts metering rows per tracked tier over
// the cost window. Tiers without usage are absent from the report. On
// failure it returns an empty report and a *CostReportingError.
func (c *CostAccountant) WarehouseCosts(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) (*CostReport, error) {
	byTier, err := c.query(ctx, s, tier)
	if err != nil {
		if escapes(ctx, err) {
			return orderedmap.NewOrderedMap[string, TierCost](), err
		}
		c.logger.Errorw("Error getting warehouse costs", "error", err)
		return orderedmap.NewOrderedMap[string, TierCost](), &CostReportingError{Err: err}
	}

	report := orderedmap.NewOrderedMap[string, TierCost]()
	for _, name := range c.tiers {
		if cost, ok := byTier[name]; ok {
			report.Set(name, cost)
		}
	}

	c.logger.Infow("Warehouse costs", "window_days", catalog.CostWindowDays, "costs", FormatCosts(report))
	return report, nil
}

func (c *CostAccountant) query(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) (map[string]TierCost, error) {
	args := make([]any, len(c.tiers))
	for i, name := range c.tiers {
		args[i] = name
	}

	rows, err := s.QueryContext(ctx, tier, c.costQuery(), args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			c.logger.Warnf("Failed to close rows in cost accountant: %v", err)
		}
	}()

	byTier := make(map[string]TierCost, len(c.tiers))
	for rows.Next() {
		var (
			name string
			cost TierCost
		)
		if err := rows.Scan(&name, &cost.Credits, &cost.Queries); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		byTier[name] = cost
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost rows: %w", err)
	}
	return byTier, nil
}

// FormatCosts renders a report as a JSON object in tier order, e.g.
// {"CLINICAL_CDC_WH": {"credits": 1.5, "queries": 12}}.
func FormatCosts(report *CostReport) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for el := report.Front(); el != nil; el = el.Next() {
		if !first {
			b.WriteString(", ")
		}
		first = false

		key, _ := json.Marshal(el.Key)
		val, _ := json.Marshal(el.Value)
		b.Write(key)
		b.WriteString(": ")
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}

// TotalCredits sums credits across the report.
func TotalCredits(report *CostReport) float64 {
	var total float64
	for el := report.Front(); el != nil; el = el.Next() {
		total += el.Value.Credits
	}
	return total
}
