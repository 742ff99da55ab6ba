package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// TierSwitchError is re-exported so callers of this package can match it
// without importing warehouse.
type TierSwitchError = warehouse.TierSwitchError

// ConnectionError means no warehouse session could be opened. No stage runs
// and nothing is audited.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MonitoringError is a recovered stream metadata or count failure.
type MonitoringError struct {
	Stream string // empty for the stream listing itself
	Err    error
}

func (e *MonitoringError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("stream status check failed: %v", e.Err)
	}
	return fmt.Sprintf("change count for stream %s failed: %v", e.Stream, e.Err)
}

func (e *MonitoringError) Unwrap() error { return e.Err }

// StagedTableError is a recovered per-entity staged table lookup failure.
type StagedTableError struct {
	Table string
	Err   error
}

func (e *StagedTableError) Error() string {
	return fmt.Sprintf("staged table %s check failed: %v", e.Table, e.Err)
}

func (e *StagedTableError) Unwrap() error { return e.Err }

// PopulationError is a recovered per-entity truncate or insert failure.
type PopulationError struct {
	Table string
	Step  string // "truncate" or "insert"
	Err   error
}

func (e *PopulationError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Step, e.Table, e.Err)
}

func (e *PopulationError) Unwrap() error { return e.Err }

// CostReportingError is a recovered cost query failure.
type CostReportingError struct {
	Err error
}

func (e *CostReportingError) Error() string {
	return fmt.Sprintf("cost report failed: %v", e.Err)
}

func (e *CostReportingError) Unwrap() error { return e.Err }

// AuditError is an audit insert failure. It is logged and dropped.
type AuditError struct {
	Event string
	Err   error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("audit entry %s not written: %v", e.Event, e.Err)
}

func (e *AuditError) Unwrap() error { return e.Err }

// PipelineError is an error that escaped every component boundary and
// terminated the run.
type PipelineError struct {
	State State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed in %s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// escapes reports whether err must abort the run instead of degrading the
// current stage. Tier switch failures and cancellation are never absorbed.
func escapes(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	var tse *TierSwitchError
	return errors.As(err, &tse) || ctx.Err() != nil
}
