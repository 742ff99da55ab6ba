package pipeline

import (
	"context"
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// AuditStatus is the execution status written with an audit entry.
type AuditStatus string

const (
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailure AuditStatus = "FAILURE"
)

// Audit event types.
const (
	EventStreamCheck      = "STREAM_CHECK"
	EventDynamicTables    = "DYNAMIC_TABLES"
	EventAnalyticsRefresh = "ANALYTICS_REFRESH"
	EventCostTracking     = "COST_TRACKING"
	EventPipelineComplete = "PIPELINE_COMPLETE"
	EventPipelineError    = "PIPELINE_ERROR"
)

// AuditRecorder appends rows to the audit table. Actor and role are taken
// from the warehouse session.
type AuditRecorder struct {
	logger *logger.Logger
}

// NewAuditRecorder creates a recorder.
func NewAuditRecorder(log *logger.Logger) *AuditRecorder {
	if log == nil {
		log = logger.NewDefault()
	}
	return &AuditRecorder{logger: log}
}

func auditInsert() string {
	return fmt.Sprintf(`INSERT INTO %s (user_name, role_name, query_text, database_name, schema_name, execution_status)
VALUES (CURRENT_USER(), CURRENT_ROLE(), ?, '%s', '%s', ?)`,
		catalog.AuditTableName(), catalog.AuditDatabaseLabel, catalog.AuditSchemaLabel)
}

// Record writes "<event>: <details>" with the given status on the current
// tier. A failed insert is logged and dropped; auditing never fails a run.
func (a *AuditRecorder) Record(ctx context.Context, s *warehouse.Session, event, details string, status AuditStatus) {
	text := fmt.Sprintf("%s: %s", event, details)

	if _, err := s.ExecContext(ctx, warehouse.CurrentTier, auditInsert(), text, string(status)); err != nil {
		a.logger.Errorw("Error logging audit entry", "error", &AuditError{Event: event, Err: err})
		return
	}

	a.logger.Infow("Logged audit entry", "event", event, "status", status)
}
