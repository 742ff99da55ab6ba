package pipeline

import (
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// Stage is a class of pipeline work that is routed to a compute tier.
type Stage int

const (
	// StageMonitoring covers metadata, counts, cost reports and audit
	// inserts. It runs on whichever tier is active.
	StageMonitoring Stage = iota
	// StageCDCProcessing covers staged (dynamic) table work.
	StageCDCProcessing
	// StageInteractiveAnalytics covers fact table population.
	StageInteractiveAnalytics
)

func (s Stage) String() string {
	switch s {
	case StageMonitoring:
		return "monitoring"
	case StageCDCProcessing:
		return "cdc_processing"
	case StageInteractiveAnalytics:
		return "interactive_analytics"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// TierSelector maps stages to tiers. The mapping is static.
type TierSelector struct {
	tiers config.TiersConfig
}

// NewTierSelector creates a selector over the configured tiers.
func NewTierSelector(tiers config.TiersConfig) *TierSelector {
	return &TierSelector{tiers: tiers}
}

// Select returns the tier a stage must run on.
func (ts *TierSelector) Select(stage Stage) warehouse.Tier {
	switch stage {
	case StageCDCProcessing:
		return warehouse.Tier(ts.tiers.CDC)
	case StageInteractiveAnalytics:
		return warehouse.Tier(ts.tiers.Interactive)
	default:
		return warehouse.CurrentTier
	}
}

// TrackedTiers returns the three tier names whose cost is reported.
func (ts *TierSelector) TrackedTiers() []string {
	return ts.tiers.Names()
}
