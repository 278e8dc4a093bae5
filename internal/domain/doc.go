// Package domain defines the core types for the invnorm inventory normalization engine.
//
// This package contains the records that flow through a normalization run and
// the value objects that describe what happened to them.
//
// # Core Types
//
// RawRecord is one row of the operator-maintained inventory, exactly as read.
// It is never mutated by the engine.
//
// NormalizedRecord is the typed, validated counterpart of a RawRecord. Each
// enrichable field carries a FieldSource recording whether its value came from
// the rule engine, from the enrichment collaborator, or is still unresolved.
//
// AnomalyEntry records a single rule violation for a row and field, with a
// severity and a remediation hint. Entries are append-only.
//
// # Enrichment
//
// EnrichmentRequest and EnrichmentResult describe the narrow contract with the
// optional enrichment collaborator. AuditEntry records each attempt without
// retaining raw prompt or response bytes.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or external dependencies
// - Rule-derived values always win over enriched values
package domain
