package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// Stream is a CDC stream as reported by the warehouse metadata views.
type Stream struct {
	Name        string
	SourceTable string
	IsStale     bool
	StaleAfter  sql.NullTime
}

// ChangeMonitor reads CDC stream metadata and pending change counts from
// the monitored schema.
type ChangeMonitor struct {
	schema string
	logger *logger.Logger
}

// NewChangeMonitor creates a monitor for streams in schema.
func NewChangeMonitor(schema string, log *logger.Logger) *ChangeMonitor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &ChangeMonitor{schema: sqlutil.NormalizeIdentifier(schema), logger: log}
}

const streamStatusQuery = `SELECT stream_name, table_name, stale, stale_after
FROM INFORMATION_SCHEMA.STREAMS
WHERE schema_name = ?
ORDER BY stream_name`

// CheckStreamStatus lists the streams in the monitored schema, ordered by
// name. A query or scan failure yields an empty list and a *MonitoringError;
// the caller is expected to carry on.
func (m *ChangeMonitor) CheckStreamStatus(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]Stream, error) {
	streams, err := m.listStreams(ctx, s, tier)
	if err != nil {
		if escapes(ctx, err) {
			return nil, err
		}
		m.logger.Errorw("Error checking stream status", "schema", m.schema, "error", err)
		return []Stream{}, &MonitoringError{Err: err}
	}

	for _, st := range streams {
		if st.IsStale {
			m.logger.Warnw("Stream is stale; changes may have been lost",
				"stream", st.Name,
				"source_table", st.SourceTable,
				"stale_after", st.StaleAfter.Time,
			)
		}
	}

	m.logger.Infof("Found %d active streams", len(streams))
	return streams, nil
}

func (m *ChangeMonitor) listStreams(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]Stream, error) {
	rows, err := s.QueryContext(ctx, tier, streamStatusQuery, m.schema)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			m.logger.Warnf("Failed to close rows in change monitor: %v", err)
		}
	}()

	var streams []Stream
	for rows.Next() {
		var (
			st    Stream
			table sql.NullString
			stale sql.NullBool
		)
		if err := rows.Scan(&st.Name, &table, &stale, &st.StaleAfter); err != nil {
			return nil, fmt.Errorf("failed to scan stream row: %w", err)
		}
		st.SourceTable = table.String
		st.IsStale = stale.Bool
		streams = append(streams, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating streams: %w", err)
	}

	if streams == nil {
		streams = []Stream{}
	}
	return streams, nil
}

// StreamChangeCount returns the number of rows currently visible in the
// stream. Any failure counts as 0 and is reported as a *MonitoringError,
// which means an unreachable stream is indistinguishable from an empty one.
func (m *ChangeMonitor) StreamChangeCount(ctx context.Context, s *warehouse.Session, tier warehouse.Tier, stream string) (int64, error) {
	name, err := sqlutil.QualifiedNameSafe(m.schema, stream)
	if err != nil {
		m.logger.Errorw("Refusing to count stream with invalid name", "stream", stream, "error", err)
		return 0, &MonitoringError{Stream: stream, Err: err}
	}

	row, err := s.QueryRowContext(ctx, tier, "SELECT COUNT(*) FROM "+name)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := row.Scan(&count); err != nil {
		if escapes(ctx, err) {
			return 0, err
		}
		m.logger.Errorw("Error getting change count", "stream", stream, "error", err)
		return 0, &MonitoringError{Stream: stream, Err: err}
	}

	m.logger.Infow("Pending changes", "stream", stream, "count", count)
	return count, nil
}
