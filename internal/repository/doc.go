// Package repository defines the run history interface for invnorm.
//
// A run is persisted in three steps: BeginRun records it as running,
// AppendAnomalies streams anomaly batches while rows are processed, and
// CompleteRun stores the final summary with the normalized records and
// the enrichment audit trail. The actual implementation is in the sqlite
// subpackage.
//
// # SQLite Implementation
//
// The sqlite implementation uses the pure-Go modernc.org/sqlite driver in
// WAL mode. Records and audit entries are stored as JSON documents next to
// the columns that are filtered on. The schema is created on open.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
