// Package adapter implements the enrichment collaborators consulted by the
// enrichment gate.
//
// Every collaborator answers through the same strict JSON contract: a
// single object with a status and the nullable fields device_type,
// device_type_confidence, owner, owner_email and owner_team. Answers are
// validated against an embedded JSON schema before they reach the gate.
//
// # Providers
//
// HTTPEnricher talks to an OpenAI-compatible chat completions endpoint.
// The sampling temperature is clamped to 0.2 and the reply is parsed
// leniently: the whole text as JSON, else the first balanced object.
//
// StaticEnricher serves canned answers keyed by row id from a JSON file.
// It is used for dry runs and reproducible fixtures.
//
// # Failure Model
//
// Any transport, status, parse or schema failure is reported as an error
// wrapping ErrUnavailable. The gate records it as an informational anomaly
// and the row keeps its rule-derived values.
package adapter
