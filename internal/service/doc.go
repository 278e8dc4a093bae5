// Package service implements the normalization engine for invnorm.
//
// # Components
//
// Normalizer validates one raw record field by field in a fixed order
// (ip, mac, hostname/fqdn, owner, device type, site) and fills derived
// fields. A bad field never aborts the row; it becomes an anomaly.
//
// AnomalyCollector is the append-only report of a run. It keeps totals by
// severity and by field and can stream each row's entries to a Sink.
//
// EnrichmentGate looks at what the rules left unresolved and, when an
// Enricher is configured, asks it once per row. Its output is merged only
// into fields that are still empty and were never set by a rule.
//
// Pipeline runs the three over a batch on a bounded worker pool and
// returns records and anomalies in row-id order.
//
// # Event System
//
// Pipeline publishes progress via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE).
//
// # Design Principles
//
// - Rule-derived values are never overwritten
// - Normalization is pure and idempotent per row
// - The enrichment collaborator is optional and fails open
// - Context-aware for cancellation and timeouts
package service
