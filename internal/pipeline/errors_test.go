package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

func TestErrorMessagesAndUnwrap(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		err  error
		want string
	}{
		{&ConnectionError{Err: cause}, "connection failed: cause"},
		{&MonitoringError{Err: cause}, "stream status check failed: cause"},
		{&MonitoringError{Stream: "S1", Err: cause}, "change count for stream S1 failed: cause"},
		{&StagedTableError{Table: "STAGING.DT_PATIENTS", Err: cause}, "staged table STAGING.DT_PATIENTS check failed: cause"},
		{&PopulationError{Table: "ANALYTICS.PATIENTS_FACT", Step: "truncate", Err: cause}, "truncate of ANALYTICS.PATIENTS_FACT failed: cause"},
		{&CostReportingError{Err: cause}, "cost report failed: cause"},
		{&AuditError{Event: "STREAM_CHECK", Err: cause}, "audit entry STREAM_CHECK not written: cause"},
		{&PipelineError{State: StateTrackingCosts, Err: cause}, "pipeline failed in TRACKING_COSTS: cause"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestEscapes(t *testing.T) {
	ctx := context.Background()
	tse := &warehouse.TierSwitchError{Tier: "CDC_WH", Err: errors.New("x")}

	assert.False(t, escapes(ctx, nil))
	assert.False(t, escapes(ctx, errors.New("query failed")))
	assert.True(t, escapes(ctx, tse))
	assert.True(t, escapes(ctx, fmt.Errorf("wrapped: %w", tse)))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, escapes(cancelled, errors.New("query failed")))
}
