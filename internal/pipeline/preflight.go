package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check   string
	Message string
	Objects []string
}

func (e *PreflightError) Error() string {
	if len(e.Objects) > 0 {
		return fmt.Sprintf("%s: %s (objects: %v)", e.Check, e.Message, e.Objects)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// PreflightChecker verifies that the warehouse objects a run depends on
// exist and that every tier can be switched to.
type PreflightChecker struct {
	session *warehouse.Session
	schema  string
	tiers   []string
	logger  *logger.Logger
}

// NewPreflightChecker creates a checker over an open session.
func NewPreflightChecker(s *warehouse.Session, schema string, tiers []string, log *logger.Logger) (*PreflightChecker, error) {
	if s == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if schema == "" {
		return nil, fmt.Errorf("stream schema is required")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &PreflightChecker{
		session: s,
		schema:  sqlutil.NormalizeIdentifier(schema),
		tiers:   tiers,
		logger:  log,
	}, nil
}

// RunAllChecks runs every check and stops at the first failure.
func (p *PreflightChecker) RunAllChecks(ctx context.Context) error {
	p.logger.Info("Running preflight checks...")

	if err := p.ValidateTiers(ctx); err != nil {
		return err
	}
	if err := p.ValidateStreamSchema(ctx); err != nil {
		return err
	}
	if err := p.ValidateCatalogTables(ctx); err != nil {
		return err
	}

	p.logger.Info("All preflight checks PASSED")
	return nil
}

// ValidateTiers switches through every tier and back to the one the
// session started on.
func (p *PreflightChecker) ValidateTiers(ctx context.Context) error {
	p.logger.Debug("Checking tier access...")

	start := p.session.Active()
	var unusable []string
	for _, name := range p.tiers {
		if err := p.session.Use(ctx, warehouse.Tier(name)); err != nil {
			p.logger.Debugw("Tier switch failed", "tier", name, "error", err)
			unusable = append(unusable, name)
		}
	}
	if err := p.session.Use(ctx, start); err != nil {
		return fmt.Errorf("failed to restore tier %s: %w", start, err)
	}

	if len(unusable) > 0 {
		return &PreflightError{
			Check:   "TIER_ACCESS_CHECK",
			Message: "Tiers cannot be used by this role",
			Objects: unusable,
		}
	}

	p.logger.Debugf("Tier access check PASSED (%d tiers)", len(p.tiers))
	return nil
}

// ValidateStreamSchema checks that the monitored schema exists.
func (p *PreflightChecker) ValidateStreamSchema(ctx context.Context) error {
	row, err := p.session.QueryRowContext(ctx, warehouse.CurrentTier,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE schema_name = ?", p.schema)
	if err != nil {
		return err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("failed to query schemas: %w", err)
	}
	if n == 0 {
		return &PreflightError{
			Check:   "STREAM_SCHEMA_CHECK",
			Message: "Stream schema not found",
			Objects: []string{p.schema},
		}
	}
	return nil
}

// ValidateCatalogTables checks that every staged, fact and audit table
// exists.
func (p *PreflightChecker) ValidateCatalogTables(ctx context.Context) error {
	p.logger.Debug("Checking catalog tables...")

	expected := expectedCatalogTables()

	schemas := []string{catalog.SchemaStaging, catalog.SchemaAnalytics, catalog.SchemaAudit}
	query := fmt.Sprintf(`SELECT table_schema, table_name
FROM INFORMATION_SCHEMA.TABLES
WHERE table_schema IN (%s)`, strings.TrimSuffix(strings.Repeat("?, ", len(schemas)), ", "))
	args := make([]any, len(schemas))
	for i, s := range schemas {
		args[i] = s
	}

	rows, err := p.session.QueryContext(ctx, warehouse.CurrentTier, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			p.logger.Warnf("Failed to close rows in preflight: %v", err)
		}
	}()

	existing := make(map[string]bool)
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return err
		}
		existing[schema+"."+table] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, name := range expected {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &PreflightError{
			Check:   "TABLE_EXISTENCE_CHECK",
			Message: "Catalog tables not found",
			Objects: missing,
		}
	}

	p.logger.Debugf("Catalog table check PASSED (%d tables)", len(expected))
	return nil
}

// expectedCatalogTables lists SCHEMA.TABLE for every table the pipeline
// reads or writes.
func expectedCatalogTables() []string {
	var names []string
	for _, e := range catalog.StagedEntities() {
		names = append(names, e.StagedDisplayName())
	}
	for _, e := range catalog.FactEntities() {
		names = append(names, e.FactDisplayName())
	}
	return append(names, catalog.SchemaAudit+"."+catalog.AuditTable)
}
