package pipeline

import (
	"context"
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// EntityResult is the outcome of rebuilding one fact table.
type EntityResult struct {
	Entity       catalog.Entity
	Truncated    bool
	Inserted     bool
	RowsInserted int64 // -1 when the driver does not report it
	Err          error // *PopulationError when either step failed
}

// FactPopulator rebuilds the analytics fact tables from their staged
// sources.
type FactPopulator struct {
	logger *logger.Logger
}

// NewFactPopulator creates a populator.
func NewFactPopulator(log *logger.Logger) *FactPopulator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &FactPopulator{logger: log}
}

// Populate truncates and reloads every fact table in catalog order.
// Deleted rows are excluded; rows with a NULL change marker are kept.
// A failed entity is recorded on its result and the next entity still runs.
//
// An entity whose truncate fails gets no insert at all, so it sees one
// statement instead of a truncate/insert pair. Loading on top of the old
// rows would duplicate them; the failure is left on EntityResult.Err.
func (p *FactPopulator) Populate(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]EntityResult, error) {
	if err := s.Use(ctx, tier); err != nil {
		return nil, err
	}

	entities := catalog.FactEntities()
	results := make([]EntityResult, 0, len(entities))

	for _, e := range entities {
		res, err := p.populateOne(ctx, s, tier, e)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

func (p *FactPopulator) populateOne(ctx context.Context, s *warehouse.Session, tier warehouse.Tier, e catalog.Entity) (EntityResult, error) {
	res := EntityResult{Entity: e, RowsInserted: -1}
	log := p.logger.WithEntity(e.Name)

	truncate, insert := populateStatements(e)

	if _, err := s.ExecContext(ctx, tier, truncate); err != nil {
		if escapes(ctx, err) {
			return res, err
		}
		res.Err = &PopulationError{Table: e.FactDisplayName(), Step: "truncate", Err: err}
		log.Errorw("Error truncating fact table; insert skipped", "table", e.FactDisplayName(), "error", err)
		return res, nil
	}
	res.Truncated = true

	result, err := s.ExecContext(ctx, tier, insert)
	if err != nil {
		if escapes(ctx, err) {
			return res, err
		}
		res.Err = &PopulationError{Table: e.FactDisplayName(), Step: "insert", Err: err}
		log.Errorw("Error loading fact table", "table", e.FactDisplayName(), "error", err)
		return res, nil
	}
	res.Inserted = true
	if n, err := result.RowsAffected(); err == nil {
		res.RowsInserted = n
	}

	log.Infow("Fact table rebuilt", "table", e.FactDisplayName(), "rows", res.RowsInserted)
	return res, nil
}

// populateStatements returns the truncate and insert statements for e.
// The change marker column is left unquoted so it resolves case-insensitively.
func populateStatements(e catalog.Entity) (string, string) {
	fact := e.FactTable()
	truncate := "TRUNCATE TABLE " + fact
	insert := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE %s IS DISTINCT FROM '%s'",
		fact,
		e.StagedTable(),
		catalog.ChangeOperationColumn,
		catalog.DeleteOperation,
	)
	return truncate, insert
}
