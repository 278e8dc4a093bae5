// Package handler implements HTTP request handlers for the invnorm API.
//
// # Handlers
//
// RunHandler accepts inventories for normalization and serves the run
// history: summaries, normalized records, anomalies and the enrichment
// audit trail of each persisted run.
//
// Middleware provides request logging, panic recovery, and CORS support.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201).
// Error responses return JSON with {error, details} structure. A missing
// required CSV header is a 400; a run that cannot be found is a 404.
//
// # Server-Sent Events
//
// The /events endpoint is served by the hub package and streams run
// progress published on the service event bus.
package handler
