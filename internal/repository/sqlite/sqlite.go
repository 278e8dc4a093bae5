package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"invnorm/internal/domain"
	"invnorm/internal/repository"
)

// defaultListLimit bounds ListRuns when no limit is given
const defaultListLimit = 50

// Repository implements repository.RunStore using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.RunStore = (*Repository)(nil)

// New opens or creates the database at dbPath. ":memory:" opens a private
// in-memory database.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// Close releases the database handle
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		enriched INTEGER NOT NULL DEFAULT 0,
		anomalies INTEGER NOT NULL DEFAULT 0,
		by_severity JSON,
		by_field JSON,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL,
		row_id INTEGER NOT NULL,
		source_id TEXT,
		ip TEXT,
		hostname TEXT,
		device_type TEXT NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (run_id, row_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		row_id INTEGER NOT NULL,
		field TEXT NOT NULL,
		severity TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		remediation TEXT,
		value TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		row_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		data JSON NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id, severity);
	CREATE INDEX IF NOT EXISTS idx_audit_run ON audit(run_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// BeginRun inserts a run in its initial state
func (r *Repository) BeginRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, stringToNull(run.Source), string(run.Status), timeToText(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// AppendAnomalies stores a batch of anomalies in arrival order
func (r *Repository) AppendAnomalies(ctx context.Context, runID string, entries []domain.AnomalyEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomalies (run_id, row_id, field, severity, kind, reason, remediation, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare anomaly statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range entries {
		if _, err := stmt.ExecContext(ctx, anomalyInsertArgs(runID, a)...); err != nil {
			return fmt.Errorf("failed to insert anomaly for row %d: %w", a.RowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CompleteRun stores the final run summary together with its records and
// audit trail in one transaction
func (r *Repository) CompleteRun(ctx context.Context, run *domain.Run, records []*domain.NormalizedRecord, audit []domain.AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args, err := runUpdateArgs(run)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed_at = ?, row_count = ?, enriched = ?,
			anomalies = ?, by_severity = ?, by_field = ?, error = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, repository.ErrNotFound)
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO records (run_id, row_id, source_id, ip, hostname, device_type, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare record statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			recArgs, err := recordInsertArgs(run.ID, rec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, recArgs...); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", rec.RowID, err)
			}
		}
	}

	if len(audit) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit (run_id, row_id, outcome, data) VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare audit statement: %w", err)
		}
		defer stmt.Close()

		for _, e := range audit {
			auditArgs, err := auditInsertArgs(run.ID, e)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, auditArgs...); err != nil {
				return fmt.Errorf("failed to insert audit entry for row %d: %w", e.RowID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		var row runRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run or repository.ErrNotFound
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var row runRow
	err := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return row.toDomain()
}

// ListRecords returns a run's normalized records in row order
func (r *Repository) ListRecords(ctx context.Context, runID string) ([]*domain.NormalizedRecord, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM records WHERE run_id = ? ORDER BY row_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.NormalizedRecord, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec := &domain.NormalizedRecord{}
		if err := json.Unmarshal([]byte(data), rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// ListAnomalies returns a run's anomalies in row order. An empty severity
// returns every anomaly.
func (r *Repository) ListAnomalies(ctx context.Context, runID string, severity domain.Severity) ([]domain.AnomalyEntry, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE run_id = ?`
	args := []interface{}{runID}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(severity))
	}
	query += ` ORDER BY row_id, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := make([]domain.AnomalyEntry, 0)
	for rows.Next() {
		var row anomalyRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return anomalies, nil
}

// ListAudit returns a run's enrichment audit entries in row order
func (r *Repository) ListAudit(ctx context.Context, runID string) ([]domain.AuditEntry, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM audit WHERE run_id = ? ORDER BY row_id, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit: %w", err)
	}
	return entries, nil
}
