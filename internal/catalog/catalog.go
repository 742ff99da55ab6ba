// Package catalog holds the fixed set of warehouse objects the pipeline
// touches. Every table name that reaches a SQL statement comes from here.
package catalog

import "github.com/dbsmedya/cdcpipe/internal/sqlutil"

// Schemas used by the pipeline.
const (
	SchemaStaging   = "STAGING"
	SchemaAnalytics = "ANALYTICS"
	SchemaAudit     = "AUDIT"
)

// Audit table and the labels written into every audit row.
const (
	AuditTable         = "ACCESS_LOG"
	AuditDatabaseLabel = "CLINICAL_DATA_PIPELINE"
	AuditSchemaLabel   = "PIPELINE"
)

// Change marker carried by every staged row.
const (
	ChangeOperationColumn = "_cdc_operation"
	DeleteOperation       = "DELETE"
)

// CostWindowDays is the trailing window for cost reporting.
const CostWindowDays = 7

// Entity is one tracked clinical entity.
type Entity struct {
	Name   string // lower-case entity name, e.g. "lab_results"
	Staged string // dynamic table in STAGING
	Fact   string // analytics table in ANALYTICS; empty when not populated
}

// HasFact reports whether the entity is loaded into an analytics fact table.
func (e Entity) HasFact() bool {
	return e.Fact != ""
}

// StagedDisplayName returns the unquoted SCHEMA.TABLE form used in logs.
func (e Entity) StagedDisplayName() string {
	return SchemaStaging + "." + e.Staged
}

// FactDisplayName returns the unquoted SCHEMA.TABLE form used in logs.
func (e Entity) FactDisplayName() string {
	if !e.HasFact() {
		return ""
	}
	return SchemaAnalytics + "." + e.Fact
}

// StagedTable returns the quoted, schema-qualified staged table.
func (e Entity) StagedTable() string {
	return sqlutil.QualifiedName(SchemaStaging, e.Staged)
}

// FactTable returns the quoted, schema-qualified fact table.
func (e Entity) FactTable() string {
	return sqlutil.QualifiedName(SchemaAnalytics, e.Fact)
}

// entities is the fixed catalog in processing order.
// patient_summary is materialized in STAGING but has no fact table.
var entities = []Entity{
	{Name: "patients", Staged: "DT_PATIENTS", Fact: "PATIENTS_FACT"},
	{Name: "encounters", Staged: "DT_ENCOUNTERS", Fact: "ENCOUNTERS_FACT"},
	{Name: "prescriptions", Staged: "DT_PRESCRIPTIONS", Fact: "PRESCRIPTIONS_FACT"},
	{Name: "lab_results", Staged: "DT_LAB_RESULTS", Fact: "LAB_RESULTS_FACT"},
	{Name: "vital_signs", Staged: "DT_VITAL_SIGNS", Fact: "VITAL_SIGNS_FACT"},
	{Name: "patient_summary", Staged: "DT_PATIENT_SUMMARY"},
}

// StagedEntities returns all six staged entities in fixed order.
func StagedEntities() []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	return out
}

// FactEntities returns the entities that have a fact table, in fixed order.
func FactEntities() []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.HasFact() {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entity with the given name.
func Lookup(name string) (Entity, bool) {
	for _, e := range entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// AuditTableName returns the quoted, schema-qualified audit table.
func AuditTableName() string {
	return sqlutil.QualifiedName(SchemaAudit, AuditTable)
}
