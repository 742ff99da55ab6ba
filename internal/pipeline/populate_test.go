package pipeline

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
)

func TestPopulateStatements(t *testing.T) {
	e, ok := catalog.Lookup("lab_results")
	require.True(t, ok)

	truncate, insert := populateStatements(e)
	assert.Equal(t, `TRUNCATE TABLE "ANALYTICS"."LAB_RESULTS_FACT"`, truncate)
	assert.Equal(t,
		`INSERT INTO "ANALYTICS"."LAB_RESULTS_FACT" SELECT * FROM "STAGING"."DT_LAB_RESULTS" WHERE _cdc_operation IS DISTINCT FROM 'DELETE'`,
		insert)
}

func TestPopulate_TruncateThenInsertPerEntityInOrder(t *testing.T) {
	s, mock := newMockSession(t)
	p := NewFactPopulator(logger.NewNop())

	expectUse(mock, "BI_WH").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, e := range catalog.FactEntities() {
		truncate, insert := populateStatements(e)
		mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(insert)).WillReturnResult(sqlmock.NewResult(0, 42))
	}

	results, err := p.Populate(context.Background(), s, "BI_WH")
	require.NoError(t, err)
	require.Len(t, results, 5)

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Entity.Name
		assert.True(t, r.Truncated)
		assert.True(t, r.Inserted)
		assert.Equal(t, int64(42), r.RowsInserted)
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, []string{"patients", "encounters", "prescriptions", "lab_results", "vital_signs"}, names)
	assert.Equal(t, 1, s.Switches())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulate_FailuresDoNotStopLaterEntities(t *testing.T) {
	s, mock := newMockSession(t)
	p := NewFactPopulator(logger.NewNop())

	expectUse(mock, "BI_WH").WillReturnResult(sqlmock.NewResult(0, 0))
	for i, e := range catalog.FactEntities() {
		truncate, insert := populateStatements(e)
		switch i {
		case 1:
			// Insert fails after a clean truncate.
			mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta(insert)).WillReturnError(errors.New("column mismatch"))
		case 3:
			// Truncate fails; no insert is attempted.
			mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnError(errors.New("table locked"))
		default:
			mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta(insert)).WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}

	results, err := p.Populate(context.Background(), s, "BI_WH")
	require.NoError(t, err)
	require.Len(t, results, 5)

	var pe *PopulationError
	require.ErrorAs(t, results[1].Err, &pe)
	assert.Equal(t, "insert", pe.Step)
	assert.Equal(t, "ANALYTICS.ENCOUNTERS_FACT", pe.Table)
	assert.True(t, results[1].Truncated)
	assert.False(t, results[1].Inserted)

	require.ErrorAs(t, results[3].Err, &pe)
	assert.Equal(t, "truncate", pe.Step)
	assert.False(t, results[3].Truncated)
	assert.False(t, results[3].Inserted)

	for _, i := range []int{0, 2, 4} {
		assert.NoError(t, results[i].Err)
		assert.True(t, results[i].Inserted)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulate_TierSwitchFailureRunsNothing(t *testing.T) {
	s, mock := newMockSession(t)
	p := NewFactPopulator(logger.NewNop())

	expectUse(mock, "BI_WH").WillReturnError(errors.New("no privilege"))

	results, err := p.Populate(context.Background(), s, "BI_WH")
	assert.Nil(t, results)

	var tse *TierSwitchError
	require.ErrorAs(t, err, &tse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulate_TruncateFailureSkipsOnlyThatInsert(t *testing.T) {
	s, mock := newMockSession(t)
	p := NewFactPopulator(logger.NewNop())

	expectUse(mock, "BI_WH").WillReturnResult(sqlmock.NewResult(0, 0))
	for i, e := range catalog.FactEntities() {
		truncate, insert := populateStatements(e)
		if i == 0 {
			mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnError(errors.New("insufficient privileges"))
			continue
		}
		mock.ExpectExec(regexp.QuoteMeta(truncate)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(insert)).WillReturnResult(sqlmock.NewResult(0, 7))
	}

	results, err := p.Populate(context.Background(), s, "BI_WH")
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "patients", results[0].Entity.Name)
	assert.False(t, results[0].Inserted)
	assert.Equal(t, int64(-1), results[0].RowsInserted)
	for _, r := range results[1:] {
		assert.Equal(t, int64(7), r.RowsInserted)
	}
	// The ordered mock fails if the patients insert is ever issued.
	assert.NoError(t, mock.ExpectationsWereMet())
}
