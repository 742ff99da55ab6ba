package pipeline

import (
	"testing"

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
	"github.com/stretchr/testify/assert"
)

func TestTierSelector_Select(t *testing.T) {
	ts := NewTierSelector(config.TiersConfig{
		Initial:     "INIT_WH",
		CDC:         "CDC_WH",
		Interactive: "BI_WH",
	})

	tests := []struct {
		stage Stage
		want  warehouse.Tier
	}{
		{StageMonitoring, warehouse.CurrentTier},
		{StageCDCProcessing, "CDC_WH"},
		{StageInteractiveAnalytics, "BI_WH"},
		{Stage(99), warehouse.CurrentTier},
	}

	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ts.Select(tt.stage))
		})
	}
}

func TestTierSelector_TrackedTiers(t *testing.T) {
	ts := NewTierSelector(config.DefaultConfig().Warehouse.Tiers)

	assert.Equal(t, []string{
		"CLINICAL_INIT_WH", "CLINICAL_CDC_WH", "CLINICAL_INTERACTIVE_WH",
	}, ts.TrackedTiers())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "monitoring", StageMonitoring.String())
	assert.Equal(t, "cdc_processing", StageCDCProcessing.String())
	assert.Equal(t, "interactive_analytics", StageInteractiveAnalytics.String())
	assert.Equal(t, "stage(7)", Stage(7).String())
}
