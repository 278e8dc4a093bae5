package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"invnorm/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is how timestamps are stored; it sorts lexically in UTC
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeToText formats t in UTC for storage
func timeToText(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timePtrToNull safely converts *time.Time to a nullable timestamp
func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToText(*t), Valid: true}
}

// textToTime parses a stored timestamp
func textToTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullToTimePtr parses a nullable timestamp
func nullToTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := textToTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string.
// Nil values and empty maps are stored as NULL.
func marshalToNull(v interface{}) (sql.NullString, error) {
	switch m := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]int:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	case map[domain.Severity]int:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the runs table:
// 1. Add field to runRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update runColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.Run
// 5. Update runUpdateArgs() if the column is written on completion
// 6. Add the column to the schema in sqlite.go migrate()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - runColumns constant
// - scanArgs() return slice
// - All SELECT queries using runColumns
//
// Same pattern applies to anomalies.

// ============================================================================
// Run Row Scanner
// ============================================================================

// runRow holds all columns from a run query for scanning
type runRow struct {
	ID             string
	Source         sql.NullString
	Status         string
	StartedAt      string
	CompletedAt    sql.NullString
	Rows           int
	Enriched       int
	Anomalies      int
	BySeverityJSON sql.NullString
	ByFieldJSON    sql.NullString
	Error          sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match runColumns order exactly:
// id, source, status, started_at, completed_at, row_count, enriched,
// anomalies, by_severity, by_field, error
func (r *runRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,             // 1
		&r.Source,         // 2
		&r.Status,         // 3
		&r.StartedAt,      // 4
		&r.CompletedAt,    // 5
		&r.Rows,           // 6
		&r.Enriched,       // 7
		&r.Anomalies,      // 8
		&r.BySeverityJSON, // 9
		&r.ByFieldJSON,    // 10
		&r.Error,          // 11
	}
}

// toDomain converts the scanned row to a domain.Run
func (r *runRow) toDomain() (*domain.Run, error) {
	started, err := textToTime(r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	completed, err := nullToTimePtr(r.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	run := &domain.Run{
		ID:          r.ID,
		Source:      nullToString(r.Source),
		Status:      domain.RunStatus(r.Status),
		StartedAt:   started,
		CompletedAt: completed,
		Rows:        r.Rows,
		Enriched:    r.Enriched,
		Anomalies:   r.Anomalies,
		Error:       nullToString(r.Error),
	}

	if err := unmarshalJSONField(r.BySeverityJSON, &run.BySeverity); err != nil {
		return nil, fmt.Errorf("unmarshal by_severity: %w", err)
	}
	if err := unmarshalJSONField(r.ByFieldJSON, &run.ByField); err != nil {
		return nil, fmt.Errorf("unmarshal by_field: %w", err)
	}

	return run, nil
}

// runColumns returns the SELECT column list for run queries
const runColumns = `id, source, status, started_at, completed_at, row_count, enriched,
	anomalies, by_severity, by_field, error`

// runUpdateArgs prepares arguments for the completion UPDATE
// Returns: status, completed_at, row_count, enriched, anomalies, by_severity, by_field, error, id
func runUpdateArgs(run *domain.Run) ([]interface{}, error) {
	bySeverity, err := marshalToNull(run.BySeverity)
	if err != nil {
		return nil, fmt.Errorf("marshal by_severity: %w", err)
	}
	byField, err := marshalToNull(run.ByField)
	if err != nil {
		return nil, fmt.Errorf("marshal by_field: %w", err)
	}

	return []interface{}{
		string(run.Status),
		timePtrToNull(run.CompletedAt),
		run.Rows,
		run.Enriched,
		run.Anomalies,
		bySeverity,
		byField,
		stringToNull(run.Error),
		run.ID,
	}, nil
}

// ============================================================================
// Anomaly Row Scanner
// ============================================================================

// anomalyRow holds all columns from an anomaly query for scanning
type anomalyRow struct {
	RowID       int
	Field       string
	Severity    string
	Kind        string
	Reason      string
	Remediation sql.NullString
	Value       sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match anomalyColumns order exactly:
// row_id, field, severity, kind, reason, remediation, value
func (r *anomalyRow) scanArgs() []interface{} {
	return []interface{}{
		&r.RowID,       // 1
		&r.Field,       // 2
		&r.Severity,    // 3
		&r.Kind,        // 4
		&r.Reason,      // 5
		&r.Remediation, // 6
		&r.Value,       // 7
	}
}

// toDomain converts the scanned row to a domain.AnomalyEntry
func (r *anomalyRow) toDomain() domain.AnomalyEntry {
	return domain.AnomalyEntry{
		RowID:       r.RowID,
		Field:       r.Field,
		Severity:    domain.Severity(r.Severity),
		Kind:        domain.ErrorKind(r.Kind),
		Reason:      r.Reason,
		Remediation: nullToString(r.Remediation),
		Value:       nullToString(r.Value),
	}
}

// anomalyColumns returns the SELECT column list for anomaly queries
const anomalyColumns = `row_id, field, severity, kind, reason, remediation, value`

// anomalyInsertArgs prepares arguments for anomaly INSERT
// Returns: run_id, row_id, field, severity, kind, reason, remediation, value
func anomalyInsertArgs(runID string, a domain.AnomalyEntry) []interface{} {
	return []interface{}{
		runID,
		a.RowID,
		a.Field,
		string(a.Severity),
		string(a.Kind),
		a.Reason,
		stringToNull(a.Remediation),
		stringToNull(a.Value),
	}
}

// ============================================================================
// Record Write Helpers
// ============================================================================

// recordInsertArgs prepares arguments for record INSERT
// Returns: run_id, row_id, source_id, ip, hostname, device_type, data
func recordInsertArgs(runID string, rec *domain.NormalizedRecord) ([]interface{}, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	return []interface{}{
		runID,
		rec.RowID,
		stringToNull(rec.SourceID),
		stringToNull(domain.Deref(rec.IP)),
		stringToNull(domain.Deref(rec.Hostname)),
		string(rec.DeviceType),
		string(data),
	}, nil
}

// auditInsertArgs prepares arguments for audit INSERT
// Returns: run_id, row_id, outcome, data
func auditInsertArgs(runID string, e domain.AuditEntry) ([]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}
	return []interface{}{runID, e.RowID, string(e.Outcome), string(data)}, nil
}
